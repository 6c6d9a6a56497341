package api

import (
	"github.com/gorilla/mux"

	"github.com/keyfold/keyfold-server/internal/api/recovery"
	"github.com/keyfold/keyfold-server/internal/ratelimit"
	"github.com/keyfold/keyfold-server/internal/services"
	"github.com/keyfold/keyfold-server/internal/session"
	"github.com/keyfold/keyfold-server/internal/store"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Store         store.Store
	Users         *services.UserService
	Vault         *services.VaultService
	Sessions      *session.Manager
	SignupLimiter *ratelimit.SignupLimiter
	SecureCookies bool
}

// NewRouter wires HTTP routes to handlers. Everything except signup, login
// and health sits behind the session gate.
func NewRouter(d RouterDeps) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	auth := NewAuth(d.Sessions, d.Store.Users())
	authHandler := NewAuthHandler(d.Users, d.Sessions, d.SignupLimiter, d.SecureCookies)
	userHandler := NewUserHandler(d.Users, d.Store, d.SecureCookies)
	collections := NewCollectionHandler(d.Vault)
	items := NewItemHandler(d.Vault)
	healthHandler := NewHealthHandler(d.Store)

	// Public surface
	root.HandleFunc("/api/auth/signup", authHandler.Signup).Methods("POST")
	root.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	// Authenticated surface
	sec := root.PathPrefix("/api").Subrouter()
	sec.Use(auth.Require)

	sec.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST")

	sec.HandleFunc("/users/me", userHandler.Me).Methods("GET")
	sec.HandleFunc("/users/me", userHandler.Delete).Methods("DELETE")
	sec.HandleFunc("/users/me/key", userHandler.Key).Methods("GET")

	sec.HandleFunc("/collections", collections.CreateCollection).Methods("POST")
	sec.HandleFunc("/collections", collections.ListCollections).Methods("GET")
	sec.HandleFunc("/collections/{collectionId}", collections.GetCollection).Methods("GET")
	sec.HandleFunc("/collections/{collectionId}", collections.RenameCollection).Methods("PUT", "PATCH")
	sec.HandleFunc("/collections/{collectionId}", collections.DeleteCollection).Methods("DELETE")
	sec.HandleFunc("/collections/{collectionId}/items", collections.ListCollectionItems).Methods("GET")

	sec.HandleFunc("/items", items.CreateItem).Methods("POST")
	sec.HandleFunc("/items", items.ListItems).Methods("GET")
	sec.HandleFunc("/items/{itemId}", items.GetItem).Methods("GET")
	sec.HandleFunc("/items/{itemId}", items.UpdateItem).Methods("PUT", "PATCH")
	sec.HandleFunc("/items/{itemId}", items.DeleteItem).Methods("DELETE")

	return root
}
