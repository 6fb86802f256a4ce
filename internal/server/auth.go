package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

const (
	DefaultUserHeader = "X-User-ID"
	ownerKey          = "owner"
)

// Authenticator resolves the owner behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts an identity header set by the gateway in front of
// the server. A missing header is the anonymous owner unless Required is set.
type HeaderAuthenticator struct {
	Header   string
	Required bool
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	owner := r.Header.Get(a.Header)
	if owner == "" && a.Required {
		return "", exception.ErrUnauthorized
	}
	return owner, nil
}

func (s *Server) authenticate(c *gin.Context) {
	owner, err := s.authn.Authenticate(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Set(ownerKey, owner)
	c.Next()
}

func ownerOf(c *gin.Context) string {
	return c.GetString(ownerKey)
}
