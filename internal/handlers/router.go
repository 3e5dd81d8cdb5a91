package handlers

import (
	"context"
	"net/http"

	"github.com/akarpov/tokenvault/internal/handlers/middleware"
	"github.com/akarpov/tokenvault/internal/logger"
	"github.com/akarpov/tokenvault/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (models.User, error)
}

func NewRouter(authHandler *AuthHandler, as authenticator, l logger.Logger) http.Handler {
	authMiddleware := middleware.AuthMiddleware(as)
	withAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.HandleFunc("POST /register", authHandler.Register)
	api.HandleFunc("POST /login", authHandler.Login)
	api.HandleFunc("POST /refresh", authHandler.Refresh)
	api.HandleFunc("POST /logout", authHandler.Logout)
	api.Handle("POST /logout-all", withAuth(authHandler.LogoutAll))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", api))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}
