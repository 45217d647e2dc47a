package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionIDKey  = "sessionId"
	sessionNewKey = "sessionNew"
)

// SessionCookie ensures every request carries a viewer session id, issuing a
// new cookie when the browser has none or sends garbage.
func SessionCookie(name string, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(name)
		if err != nil || !validSessionID(id) {
			id = uuid.NewString()
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     name,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			c.Set(sessionNewKey, true)
		}
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

// SessionIDFromContext fetches the id stored by SessionCookie.
func SessionIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(sessionIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// SessionIsNew reports whether SessionCookie minted the id on this request,
// meaning the client did not present one.
func SessionIsNew(c *gin.Context) bool {
	return c.GetBool(sessionNewKey)
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
