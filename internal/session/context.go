package session

import "github.com/gin-gonic/gin"

const storeContextKey = "__session_store"

// Attach stores s on the request context.
func Attach(c *gin.Context, s *Store) {
	c.Set(storeContextKey, s)
}

// FromContext returns the store attached to the request, or nil.
func FromContext(c *gin.Context) *Store {
	if value, exists := c.Get(storeContextKey); exists {
		if store, ok := value.(*Store); ok {
			return store
		}
	}
	return nil
}
