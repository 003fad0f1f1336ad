package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/api"
	"github.com/mitrahelp/mitrahelp-api/api/scheduler"
	"github.com/mitrahelp/mitrahelp-api/config"
	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/realtime"
	"github.com/mitrahelp/mitrahelp-api/tracking"
)

// App stores the router and the wired dispatch components, so they can be reused
type App struct {
	Router      *mux.Router
	Config      config.Config
	Index       *geo.Index
	Socket      *realtime.SocketServer
	Hub         *realtime.Hub
	Coordinator *dispatch.Coordinator
	Tracking    *tracking.Service
	Scheduler   *scheduler.Scheduler
	dbHelper    databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	m := api.Middleware{Secret: []byte(a.Config.JWTSecret)}

	r := mux.NewRouter()

	edb := databases.NewEmergencyDatabase(a.dbHelper)
	udb := databases.NewUserDatabase(a.dbHelper)

	e := Emergency{DB: edb, Coordinator: a.Coordinator}
	t := Tracking{Service: a.Tracking}
	resp := Responder{DB: udb, Index: a.Index}
	n := Notification{Hub: a.Hub}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	if a.Socket != nil {
		r.Handle("/socket.io/", a.Socket.Server())
	}
	r.HandleFunc("/ws/notifications", n.WebsocketHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/emergency", m.Wrap(http.HandlerFunc(e.CreateEmergencyHandler))).Methods("POST")
	apiCreate.Handle("/emergency/{emergency_id}", m.Wrap(http.HandlerFunc(e.EmergencyByIDHandler))).Methods("GET")
	apiCreate.Handle("/emergency/{emergency_id}/accept", m.Wrap(http.HandlerFunc(e.AcceptEmergencyHandler))).Methods("PUT")
	apiCreate.Handle("/emergency/{emergency_id}/status", m.Wrap(http.HandlerFunc(t.ReportStatusHandler))).Methods("PUT")
	apiCreate.Handle("/emergency/{emergency_id}/location", m.Wrap(http.HandlerFunc(t.ReportPositionHandler))).Methods("POST")
	apiCreate.Handle("/emergency/{emergency_id}/tracking", m.Wrap(http.HandlerFunc(t.TrackingSnapshotHandler))).Methods("GET")

	apiCreate.Handle("/emergencies/nearby", m.Wrap(http.HandlerFunc(e.NearbyEmergenciesHandler))).Methods("GET")
	apiCreate.Handle("/emergencies/assigned", m.Wrap(http.HandlerFunc(e.AssignedEmergenciesHandler))).Methods("GET")
	apiCreate.Handle("/emergencies/user", m.Wrap(http.HandlerFunc(e.UserEmergenciesHandler))).Methods("GET")

	apiCreate.Handle("/responder/availability", m.Wrap(http.HandlerFunc(resp.SetAvailabilityHandler))).Methods("PUT")
	apiCreate.Handle("/responder/location", m.Wrap(http.HandlerFunc(resp.UpdateLocationHandler))).Methods("PUT")
	apiCreate.Handle("/responder/home-location", m.Wrap(http.HandlerFunc(resp.UpdateHomeLocationHandler))).Methods("PUT")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("mitrahelp-api has connected to the database")

	edb := databases.NewEmergencyDatabase(a.dbHelper)
	udb := databases.NewUserDatabase(a.dbHelper)

	a.Index = geo.NewIndex()
	a.Socket = realtime.NewSocketServer()
	a.Hub = realtime.NewHub()
	publisher := realtime.Multi{a.Socket, a.Hub}

	states := &dispatch.StateMachine{DB: edb}
	fanout := &dispatch.Fanout{
		Users:     udb,
		Publisher: publisher,
		Email:     dispatch.NewSendgridSender(),
	}
	a.Coordinator = &dispatch.Coordinator{
		DB:        edb,
		Locator:   a.Index,
		States:    states,
		Fanout:    fanout,
		Publisher: publisher,
	}
	a.Tracking = tracking.NewService(edb, states, publisher)

	a.Scheduler = scheduler.New(udb, edb, a.Index)
	if err := a.Scheduler.RefreshIndex(context.Background()); err != nil {
		// an empty index self-heals on the next refresh tick
		zap.S().Warnw("initial geo index load failed", "error", err)
	}
	a.Scheduler.Start()

	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
