package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/folkengine/goname"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-tabletop/auth"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/globals"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
	"github.com/tcriess/lightspeed-tabletop/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	globalConfig *config.Config
	persister    persistence.Persister

	hubs     map[string]*ws.Hub = make(map[string]*ws.Hub)
	hubsLock sync.RWMutex
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()
	log.SetFlags(0)

	var err error
	globalConfig, err = config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err = persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	cronRunner := cron.New()
	if _, err := cronRunner.AddFunc(globalConfig.CleanupSpec(), cleanupEndedSessions); err != nil {
		panic(fmt.Sprintf("invalid cleanup cron spec: %s", err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	setupRoutes()
	// start HTTP server
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

func setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/api/sessions/{session}/ws-token", wsTokenHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{session}", sessionPatchHandler).Methods(http.MethodPatch)
	router.HandleFunc("/api/sessions/{session}/channels", createChannelHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/channels/{channel}/messages", messagesHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/sessions/{session}", websocketHandler).Methods(http.MethodGet)
	http.Handle("/", router)
}

// getHub returns the hub of the given session, lazily creating and starting
// it on first access.
func getHub(sessionId string) (*ws.Hub, error) {
	hubsLock.RLock()
	if hub, ok := hubs[sessionId]; ok {
		hubsLock.RUnlock()
		return hub, nil
	}
	hubsLock.RUnlock()

	session := types.Session{Id: sessionId}
	if err := persister.GetSession(&session); err != nil {
		return nil, err
	}
	hubsLock.Lock()
	defer hubsLock.Unlock()
	if hub, ok := hubs[sessionId]; ok {
		return hub, nil
	}
	hub := ws.NewHub(&session, globalConfig, persister)
	hubs[sessionId] = hub
	go hub.Run()
	return hub, nil
}

// cleanupEndedSessions drops the hubs of ended sessions and deletes their
// session-scoped fog state. Campaign- and adventure-scoped fog outlives the
// session on purpose.
func cleanupEndedSessions() {
	hubsLock.Lock()
	defer hubsLock.Unlock()
	for sessionId, hub := range hubs {
		if !hub.Session.Ended() {
			continue
		}
		hub.CloseAll()
		delete(hubs, sessionId)
		if err := persister.DeleteFogStates(types.ScopeSession, sessionId); err != nil {
			globals.AppLogger.Error("could not delete session fog state", "session", sessionId, "error", err)
		}
		globals.AppLogger.Info("cleaned up ended session", "session", sessionId)
	}
}

// wsTokenHandler exchanges the caller's identity for a short-lived
// session-scoped websocket token. Identity comes from a verified OIDC ID
// token, callers without one are rejected. First-seen users without a stored
// nick get a generated one.
func wsTokenHandler(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["session"]
	hub, err := getHub(sessionId)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if hub.Session.Ended() {
		http.Error(w, "session has ended", http.StatusGone)
		return
	}

	body := struct {
		IdToken  string `json:"id_token"`
		Provider string `json:"provider"`
	}{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	userId := ""
	if body.IdToken != "" && body.Provider != "" {
		userId, _ = auth.Authenticate(body.IdToken, body.Provider, globalConfig)
	}
	if userId == "" {
		http.Error(w, "could not establish identity", http.StatusUnauthorized)
		return
	}
	if !hub.Session.IsParticipant(userId) && !hub.Session.IsInvited(userId) {
		http.Error(w, "not part of this session", http.StatusForbidden)
		return
	}

	user := types.User{Id: userId}
	if err := persister.GetUser(&user); err != nil {
		if err != types.ErrNotFound {
			globals.AppLogger.Error("could not get user", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		user.Nick = goname.New(goname.FantasyMap).FirstLast()
		user.Tags = make(map[string]string)
	}
	user.LastOnline = time.Now()
	if err := persister.StoreUser(user); err != nil {
		globals.AppLogger.Error("could not store user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := auth.IssueWSToken(globalConfig, sessionId, &user)
	if err != nil {
		globals.AppLogger.Error("could not issue ws token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// Handle incoming websockets
func websocketHandler(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["session"]
	hub, err := getHub(sessionId)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	user, err := auth.VerifyWSToken(globalConfig, sessionId, r.URL.Query().Get("token"))
	if err != nil {
		globals.AppLogger.Debug("ws token rejected", "error", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if hub.Session.Ended() {
		w.WriteHeader(http.StatusGone)
		return
	}
	if !hub.Session.IsParticipant(user.Id) && !hub.Session.IsInvited(user.Id) {
		// membership may have been revoked between token issue and connect
		w.WriteHeader(http.StatusForbidden)
		return
	}

	// Upgrade HTTP request to Websocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	// When this frame returns close the Websocket
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	c := ws.NewClient(hub, conn, user, doneChan)

	// Add to the hub. The read-out of the register channel happens
	// asynchronously, so wait until the client actually is registered before
	// starting the pumps.
	c.Add(1)
	hub.Register <- c
	c.Wait()
	defer func() {
		hub.Unregister <- c
	}()
	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	<-doneChan
	globals.AppLogger.Debug("doneChan closed, exiting ws handler", "user", user.Id)
}

// tokenUser authenticates a REST call with a websocket token scoped to the
// given session (passed as a bearer token or "token" query parameter).
func tokenUser(r *http.Request, sessionId string) (*types.User, error) {
	token := r.URL.Query().Get("token")
	if authHeader := r.Header.Get("Authorization"); token == "" && len(authHeader) > len("Bearer ") {
		token = authHeader[len("Bearer "):]
	}
	return auth.VerifyWSToken(globalConfig, sessionId, token)
}

// sessionPatchHandler applies a status change requested via REST. The change
// goes through the hub inbound channel, so it is serialized with the
// websocket mutations of the same session.
func sessionPatchHandler(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["session"]
	hub, err := getHub(sessionId)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	user, err := tokenUser(r, sessionId)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !hub.Session.IsDM(user.Id) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	body := struct {
		Status types.SessionStatus `json:"status"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	payload, err := json.Marshal(types.SetStatusPayload{Status: body.Status})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	hub.Inbound <- ws.Inbound{
		Actor:   user,
		Message: types.WireMessage{Type: types.MessageTypeSetStatus, Payload: payload},
	}
	w.WriteHeader(http.StatusAccepted)
}

func createChannelHandler(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["session"]
	hub, err := getHub(sessionId)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	user, err := tokenUser(r, sessionId)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body := struct {
		ParticipantIds []string `json:"participant_ids"`
		Name           string   `json:"name"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	channel, err := hub.Chat.CreateChannel(hub.Session, user.Id, body.ParticipantIds, body.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// only the channel participants learn about the new channel
	hub.Notify(types.MessageTypeChatChannelNew,
		types.ChatChannelCreatedPayload{Channel: channel}, nil, user, ws.ChannelTargetFilter(channel))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(channel)
}

// messagesHandler pages backwards through the history of one channel.
func messagesHandler(w http.ResponseWriter, r *http.Request) {
	channelId := mux.Vars(r)["channel"]
	channel := types.ChatChannel{Id: channelId}
	if err := persister.GetChannel(&channel); err != nil {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	hub, err := getHub(channel.SessionId)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	user, err := tokenUser(r, channel.SessionId)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !channel.IsMain && !channel.HasParticipant(user.Id) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}
	messages, err := hub.Chat.Messages(channelId, r.URL.Query().Get("before"), limit)
	if err != nil {
		globals.AppLogger.Error("could not load messages", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messages)
}
