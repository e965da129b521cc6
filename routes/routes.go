package routes

import (
	"github.com/bellapacxx/bingo-live/broadcast"
	"github.com/bellapacxx/bingo-live/controllers"
	"github.com/gin-gonic/gin"
)

// Options selects which transports are mounted. A nil Mesh disables /ws and
// SSE false disables the event stream.
type Options struct {
	CoordinatorSecret string
	SSE               bool
	Mesh              *broadcast.Mesh
}

func SetupRoutes(r *gin.Engine, api *controllers.API, hub *broadcast.Hub, opts Options) {
	r.GET("/health", api.Health)

	pub := r.Group("/api")

	// ----------------------
	// Public read model
	// ----------------------
	pub.GET("/session", api.GetSession)

	// ----------------------
	// Player routes
	// ----------------------
	player := pub.Group("/player")
	player.POST("/join", api.Join)           // Join by name
	player.POST("/claim", api.Claim)         // Take over a name from another device
	player.POST("/reconnect", api.Reconnect) // Re-attach by device token
	player.POST("/mark", api.Mark)           // Toggle a cell
	player.POST("/leave", api.Leave)         // Leave the game

	// ----------------------
	// Coordinator routes
	// ----------------------
	coord := pub.Group("", controllers.RequireCoordinator(opts.CoordinatorSecret))
	coord.POST("/session", api.CreateSession)
	coord.PATCH("/session", api.PatchSession)
	coord.POST("/session/new-game", api.NewGame)
	coord.POST("/draw", api.Draw)
	coord.POST("/validate", api.Validate)
	coord.POST("/admin/players/remove", api.RemovePlayer)
	coord.POST("/admin/players/wipe", api.WipePlayers)
	coord.POST("/admin/reset", api.Reset)

	// ----------------------
	// Streams
	// ----------------------
	if opts.SSE {
		pub.GET("/events", hub.ServeSSE(api.ResolveStream))
		pub.POST("/events/ping", hub.ServePing(api.StreamPinged))
	}
	if opts.Mesh != nil {
		r.GET("/ws", opts.Mesh.Handle)
	}
}
