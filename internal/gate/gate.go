// Package gate decides whether a route may render for the current session.
package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/session"
)

const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Decision is the outcome of evaluating a gate.
type Decision struct {
	Allow    bool
	Redirect string
}

// Gate guards a view. With RequiresAuthentication set, guests are sent to the
// login page; without it, logged in users are sent home.
type Gate struct {
	RequiresAuthentication bool
}

// Authenticated guards views reserved for logged in users.
func Authenticated() Gate {
	return Gate{RequiresAuthentication: true}
}

// Guest guards views reserved for anonymous visitors, such as the login form.
func Guest() Gate {
	return Gate{RequiresAuthentication: false}
}

// Evaluate applies the gate to a session snapshot.
func (g Gate) Evaluate(s session.Session) Decision {
	switch {
	case g.RequiresAuthentication && !s.IsAuthenticated:
		return Decision{Redirect: LoginPath}
	case !g.RequiresAuthentication && s.IsAuthenticated:
		return Decision{Redirect: HomePath}
	default:
		return Decision{Allow: true}
	}
}

// Watch re-evaluates the gate each time the store's authentication flag
// changes and calls onRedirect when the view must be left.
func (g Gate) Watch(store *session.Store, onRedirect func(path string)) func() {
	last := store.Snapshot().IsAuthenticated
	return store.Subscribe(func(s session.Session) {
		if s.IsAuthenticated == last {
			return
		}
		last = s.IsAuthenticated
		if d := g.Evaluate(s); !d.Allow {
			onRedirect(d.Redirect)
		}
	})
}

// Middleware enforces the gate on the store attached to the request.
func (g Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var state session.Session
		if store := session.FromContext(c); store != nil {
			state = store.Snapshot()
		}

		if d := g.Evaluate(state); !d.Allow {
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}
