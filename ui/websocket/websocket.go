package websocket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-gallery/infrastructure/valkey"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/AzielCF/az-gallery/syncengine/domain/notification"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const sendBuffer = 32

type client struct {
	galleryID string
	userID    string
	send      chan []byte
}

type BroadcastMessage struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	GalleryID string   `json:"gallery_id,omitempty"`
	Result    any      `json:"result"`
	SenderID  string   `json:"sender_id,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

var (
	Clients    = make(map[*websocket.Conn]*client)
	Register   = make(chan registration)
	Broadcast  = make(chan BroadcastMessage)
	Unregister = make(chan *websocket.Conn)

	vkClient *valkey.Client
	wsChan   = "ws_broadcast"
	localID  string
)

type registration struct {
	conn   *websocket.Conn
	client *client
}

// SetValkeyClient initializes the distributed broadcast system
func SetValkeyClient(client *valkey.Client, serverID string) {
	vkClient = client
	localID = serverID
}

func handleRegister(r registration) {
	Clients[r.conn] = r.client
	logrus.Debugf("[WS] Connection registered for gallery %s", r.client.galleryID)
}

func handleUnregister(conn *websocket.Conn) {
	delete(Clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

// broadcastToLocal queues message for every local client watching its
// gallery, or for every client when the message has no gallery.
func broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for _, c := range Clients {
		if message.GalleryID != "" && c.galleryID != message.GalleryID {
			continue
		}
		select {
		case c.send <- marshalMessage:
		default:
			logrus.Warnf("[WS] Dropping broadcast %s for slow client on %s", message.Code, c.galleryID)
		}
	}
}

func publishToValkey(message BroadcastMessage) {
	if vkClient == nil {
		return
	}

	message.SenderID = localID

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	if err := vkClient.Publish(context.Background(), wsChan, string(data)); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func startValkeySubscriber() {
	if vkClient == nil {
		return
	}

	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	go func() {
		err := vkClient.Subscribe(context.Background(), wsChan, func(msg string) {
			var broadcastMsg BroadcastMessage
			if err := json.Unmarshal([]byte(msg), &broadcastMsg); err == nil {
				// ignore our own messages
				if broadcastMsg.SenderID == localID {
					return
				}
				select {
				case remote <- broadcastMsg:
				case <-hubDone:
				}
			}
		})
		if err != nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

var (
	// remote carries messages from other nodes into the hub goroutine.
	remote = make(chan BroadcastMessage, 64)
	// hubDone is closed once RunHub returns.
	hubDone = make(chan struct{})
)

// RunHub owns Clients. It returns when ctx is done.
func RunHub(ctx context.Context) {
	defer close(hubDone)
	if vkClient != nil {
		startValkeySubscriber()
	}

	for {
		select {
		case <-ctx.Done():
			for conn := range Clients {
				handleUnregister(conn)
			}
			return

		case r := <-Register:
			handleRegister(r)

		case conn := <-Unregister:
			handleUnregister(conn)

		case message := <-remote:
			broadcastToLocal(message)

		case message := <-Broadcast:
			// 1. Local clients
			broadcastToLocal(message)

			// 2. Other servers
			if vkClient != nil {
				publishToValkey(message)
			}
		}
	}
}

// RegisterRoutes serves /ws?gallery=<id>&user=<id>. The connection holds a
// reference on the gallery session and receives every view change plus the
// user's notifications.
func RegisterRoutes(app fiber.Router, engine *syncengine.Manager) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			if c.Query("gallery") == "" {
				return c.Status(fiber.StatusBadRequest).SendString("gallery is required")
			}
			c.Locals("gallery", c.Query("gallery"))
			c.Locals("user", c.Query("user"))
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		galleryID, _ := conn.Locals("gallery").(string)
		userID, _ := conn.Locals("user").(string)
		serve(conn, engine, galleryID, userID)
	}))
}

func serve(conn *websocket.Conn, engine *syncengine.Manager, galleryID, userID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := engine.Acquire(ctx, galleryID)
	if err != nil {
		logrus.Warnf("[WS] Could not open gallery %s: %v", galleryID, err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}
	defer engine.Release(galleryID)

	c := &client{galleryID: galleryID, userID: userID, send: make(chan []byte, sendBuffer)}
	select {
	case Register <- registration{conn: conn, client: c}:
	case <-hubDone:
		return
	}
	defer func() {
		select {
		case Unregister <- conn:
		case <-hubDone:
		}
		_ = conn.Close()
	}()

	// Watch and notification callbacks run on engine goroutines; they only
	// queue frames. The writer below is the only one touching conn.
	push := func(message BroadcastMessage) {
		data, err := json.Marshal(message)
		if err != nil {
			logrus.Errorf("[WS] Marshal error: %v", err)
			return
		}
		select {
		case c.send <- data:
		case <-ctx.Done():
		default:
			logrus.Warnf("[WS] Dropping %s for slow client on %s", message.Code, galleryID)
		}
	}

	go writeLoop(ctx, conn, c.send)

	unwatch := session.Watch(func(view gallery.View) {
		push(BroadcastMessage{Code: "GALLERY_VIEW", GalleryID: galleryID, Result: view})
	})
	defer unwatch()
	push(BroadcastMessage{Code: "GALLERY_VIEW", GalleryID: galleryID, Result: session.Snapshot()})

	if userID != "" {
		unsubscribe := engine.Notifications().Subscribe(galleryID, userID, func(list []notification.Notification) {
			push(BroadcastMessage{Code: "NOTIFICATIONS", GalleryID: galleryID, Result: list})
		})
		defer unsubscribe()
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Debugf("[WS] read error: %v", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			logrus.Debugf("[WS] unsupported message type: %d", messageType)
			continue
		}

		var request BroadcastMessage
		if err := json.Unmarshal(message, &request); err != nil {
			logrus.Debugf("[WS] unmarshal error: %v", err)
			return
		}
		handleRequest(ctx, engine, galleryID, userID, request, push)
	}
}

func handleRequest(ctx context.Context, engine *syncengine.Manager, galleryID, userID string, request BroadcastMessage, push func(BroadcastMessage)) {
	session, ok := engine.Session(galleryID)
	if !ok {
		return
	}

	var err error
	switch request.Code {
	case "LOAD_MORE":
		err = session.LoadMore(ctx)
	case "REFRESH":
		if err = session.Refresh(ctx); err == nil {
			select {
			case Broadcast <- BroadcastMessage{Code: "GALLERY_REFRESHED", Message: "Gallery was refreshed", GalleryID: galleryID}:
			case <-hubDone:
			}
		}
	case "MARK_READ":
		err = engine.Notifications().MarkRead(ctx, galleryID, request.IDs)
	case "MARK_ALL_READ":
		if userID != "" {
			err = engine.Notifications().MarkAllRead(ctx, galleryID, userID)
		}
	default:
		logrus.Debugf("[WS] unknown request code %q", request.Code)
		return
	}

	if err != nil {
		push(BroadcastMessage{Code: "ERROR", Message: err.Error(), GalleryID: galleryID, Result: request.Code})
	}
}

// writeLoop is the only writer of conn. send is never closed; the loop ends
// with ctx.
func writeLoop(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.Debugf("[WS] Write error: %v", err)
				_ = conn.Close()
				return
			}
		}
	}
}
