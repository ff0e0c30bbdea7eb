package node

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// Router builds the full REST surface of spec.md §6, wrapped in a
// permissive CORS policy so the façade can be driven from a browser
// front-end on a different origin, the same posture every HTTP-facing
// example in the corpus takes for a development-grade node.
func (a *App) Router() http.Handler {
	r := httprouter.New()

	r.GET("/", a.handleIndex)
	r.POST("/wallet", a.handleCreateWallet)
	r.GET("/wallet", a.handleLoadWallet)
	r.GET("/balance", a.handleBalance)
	r.POST("/transaction", a.handleSubmitTransaction)
	r.POST("/broadcast-transaction", a.handleBroadcastTransaction)
	r.POST("/mine", a.handleMine)
	r.POST("/broadcast-block", a.handleBroadcastBlock)
	r.GET("/chain", a.handleChain)
	r.POST("/node", a.handleAddNode)
	r.DELETE("/node/*url", a.handleRemoveNode)
	r.GET("/nodes", a.handleListNodes)
	r.POST("/resolve", a.handleResolve)

	return cors.AllowAll().Handler(r)
}
