package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"messenger-sync/internal/middleware"
)

// NewRouter wires every HTTP and WebSocket route
func NewRouter(
	validator middleware.TokenValidator,
	userHandler *UserHandler,
	conversationHandler *ConversationHandler,
	wsHandler *WebSocketHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(validator))

		r.Post("/users", userHandler.CreateUser)
		r.Get("/users", userHandler.GetUsers)
		r.Get("/users/exists", userHandler.UserExists)
		r.Get("/users/search", userHandler.SearchUsers)
		r.Put("/users/me/push-token", userHandler.SetPushToken)
		r.Post("/users/me/picture", userHandler.UploadPicture)

		r.Get("/conversations", conversationHandler.ListConversations)
		r.Post("/conversations", conversationHandler.CreateConversation)
		r.Get("/conversations/exists", conversationHandler.ConversationExists)
		r.Delete("/conversations/{conversation_id}", conversationHandler.DeleteConversation)
		r.Get("/conversations/{conversation_id}/messages", conversationHandler.ListMessages)
		r.Post("/conversations/{conversation_id}/messages", conversationHandler.SendMessage)
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
