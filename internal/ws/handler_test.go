package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"backoffice/internal/changefeed"
	"backoffice/internal/delivery"
	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/internal/protocol"
	"backoffice/internal/registry"
	"backoffice/internal/repository"
	"backoffice/pkg/util"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	store   *repository.MemoryStore
	reg     *registry.Registry
	handler *Handler
	url     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	store := repository.NewMemoryStore(log)
	reg := registry.New(identity.NewStaticResolver([]model.Identity{
		{AdminID: "admin-42", Roles: []string{"SUPPLY_CONTROLLER_ROLE"}},
		{AdminID: "admin-7", Roles: []string{"DEFAULT_ADMIN_ROLE"}},
	}), log)
	mux := delivery.NewMultiplexer(store, reg, log)

	listener := changefeed.NewListener(store, store, 10*time.Millisecond, log)
	listener.OnCreate(mux.HandleCreated)
	listener.OnUpdate(mux.HandleUpdated)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = listener.Run(ctx)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !listener.Subscribed() {
		if time.Now().After(deadline) {
			t.Fatal("listener did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	handler := NewHandler(mux, testSecret, 16, log)
	r := gin.New()
	r.GET("/ws", handler.Serve)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		handler.Shutdown()
		srv.Close()
		cancel()
		<-done
	})

	return &harness{
		store:   store,
		reg:     reg,
		handler: handler,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func token(t *testing.T, adminID string) string {
	t.Helper()
	tok, err := util.GenerateJWT(adminID, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func sendJoin(t *testing.T, conn *websocket.Conn, adminID, authToken string) {
	t.Helper()
	err := conn.WriteJSON(protocol.Envelope{
		Event: protocol.EventJoin,
		Data:  protocol.Join{AdminID: adminID, AuthToken: authToken},
	})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) protocol.Inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var in protocol.Inbound
	if err := conn.ReadJSON(&in); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return in
}

func readNotification(t *testing.T, conn *websocket.Conn) protocol.NotificationPayload {
	t.Helper()
	in := read(t, conn)
	if in.Event != protocol.EventNotification {
		t.Fatalf("event = %s (%s), want notification", in.Event, in.Data)
	}
	var p protocol.NotificationPayload
	if err := json.Unmarshal(in.Data, &p); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	return p
}

func readCount(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	in := read(t, conn)
	if in.Event != protocol.EventUnreadCountUpdate {
		t.Fatalf("event = %s, want unread_count_update", in.Event)
	}
	var n int
	if err := json.Unmarshal(in.Data, &n); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	return n
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	in := read(t, conn)
	if in.Event != protocol.EventError {
		t.Fatalf("event = %s, want error", in.Event)
	}
	var p protocol.ErrorPayload
	_ = json.Unmarshal(in.Data, &p)
	return p.Message
}

// join connects adminID and consumes the resync frames.
func (h *harness) join(t *testing.T, adminID string) (*websocket.Conn, int) {
	t.Helper()
	conn := h.dial(t)
	sendJoin(t, conn, adminID, token(t, adminID))

	in := read(t, conn)
	if in.Event != protocol.EventWelcome {
		t.Fatalf("first frame = %s (%s), want welcome", in.Event, in.Data)
	}
	list := readNotification(t, conn)
	if list.Type != protocol.TypeNotificationList {
		t.Fatalf("resync type = %s", list.Type)
	}
	return conn, list.UnreadCount
}

func (h *harness) create(t *testing.T, in model.NewNotification) *model.Notification {
	t.Helper()
	n, err := h.store.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return n
}

func TestScenarioABroadcastReachesEveryRole(t *testing.T) {
	h := newHarness(t)
	c42, _ := h.join(t, "admin-42")
	c7, _ := h.join(t, "admin-7")

	n := h.create(t, model.NewNotification{
		Type:        model.TypeSystem,
		Title:       "Maintenance",
		Message:     "Scheduled downtime",
		Priority:    model.PriorityHigh,
		TargetRoles: []string{},
	})

	for _, conn := range []*websocket.Conn{c42, c7} {
		p := readNotification(t, conn)
		if p.Type != protocol.TypeNewNotification || p.Notification == nil || p.Notification.ID != n.ID {
			t.Errorf("payload = %+v, want new_notification %s", p, n.ID)
		}
		if got := readCount(t, conn); got != 1 {
			t.Errorf("unread count = %d, want 1", got)
		}
	}
}

func TestScenarioBAndCTargetedAdmin(t *testing.T) {
	h := newHarness(t)
	c42, _ := h.join(t, "admin-42")
	c7, _ := h.join(t, "admin-7")

	direct := h.create(t, model.NewNotification{Type: model.TypeRedemption, Title: "Redemption", Message: "pending", TargetAdminID: "admin-42"})
	if p := readNotification(t, c42); p.Notification.ID != direct.ID {
		t.Fatalf("admin-42 got %s, want %s", p.Notification.ID, direct.ID)
	}
	readCount(t, c42)

	// admin-7's first frame must belong to the broadcast, not the direct one
	first := h.create(t, model.NewNotification{Type: model.TypeSystem, Title: "first broadcast", Message: "m"})
	if p := readNotification(t, c7); p.Notification.ID != first.ID {
		t.Fatalf("admin-7 got %s, want broadcast %s", p.Notification.ID, first.ID)
	}
	readCount(t, c7)
	readNotification(t, c42)
	before := readCount(t, c42)
	if before != 2 {
		t.Fatalf("admin-42 unread = %d, want 2", before)
	}

	if _, err := h.store.MarkRead(context.Background(), direct.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	p := readNotification(t, c42)
	if p.Type != protocol.TypeNotificationListUpdated {
		t.Errorf("type = %s, want notification_list_updated", p.Type)
	}
	if after := readCount(t, c42); after != before-1 {
		t.Errorf("unread after mark read = %d, want %d", after, before-1)
	}

	second := h.create(t, model.NewNotification{Type: model.TypeSystem, Title: "second broadcast", Message: "m"})
	if p := readNotification(t, c7); p.Type != protocol.TypeNewNotification || p.Notification.ID != second.ID {
		t.Errorf("admin-7 got %+v, want only the second broadcast", p)
	}
}

func TestResyncOnReconnect(t *testing.T) {
	h := newHarness(t)
	h.create(t, model.NewNotification{Type: model.TypeSystem, Title: "broadcast", Message: "m"})
	h.create(t, model.NewNotification{Type: model.TypePurchase, Title: "for 42", Message: "m", TargetAdminID: "admin-42"})
	h.create(t, model.NewNotification{Type: model.TypePurchase, Title: "for default admins", Message: "m", TargetRoles: []string{"DEFAULT_ADMIN_ROLE"}})

	_, unread42 := h.join(t, "admin-42")
	_, unread7 := h.join(t, "admin-7")
	if unread42 != 2 || unread7 != 2 {
		t.Errorf("resync counts = %d, %d; want 2, 2", unread42, unread7)
	}
}

func TestJoinRejections(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		adminID string
		token   func(t *testing.T) string
		want    string
	}{
		{name: "garbage token", adminID: "admin-42", token: func(*testing.T) string { return "nope" }, want: "Invalid auth token"},
		{name: "token for another admin", adminID: "admin-42", token: func(t *testing.T) string { return token(t, "admin-7") }, want: "Invalid auth token"},
		{name: "unknown admin", adminID: "ghost", token: func(t *testing.T) string { return token(t, "ghost") }, want: "Admin not found"},
		{name: "missing admin id", adminID: "", token: func(t *testing.T) string { return token(t, "admin-42") }, want: "adminId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := h.dial(t)
			sendJoin(t, conn, tt.adminID, tt.token(t))
			if got := readError(t, conn); got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry has %d connections after rejected joins", h.reg.Len())
	}
}

func TestUnknownEventAndDoubleJoin(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.join(t, "admin-7")

	if err := conn.WriteJSON(protocol.Envelope{Event: "subscribe", Data: nil}); err != nil {
		t.Fatal(err)
	}
	if got := readError(t, conn); got != "Unknown event" {
		t.Errorf("error = %q", got)
	}

	sendJoin(t, conn, "admin-7", token(t, "admin-7"))
	if got := readError(t, conn); got != "Already joined" {
		t.Errorf("error = %q", got)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.join(t, "admin-7")
	if h.reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.reg.Len())
	}

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection still registered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendOnClosedClient(t *testing.T) {
	c := newClient("c1", nil, 1, zaptest.NewLogger(t))
	if err := c.Send(protocol.NewUnreadCount(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send(protocol.NewUnreadCount(2)); err == nil {
		t.Error("Send on full queue succeeded")
	}
	c.close()
	c.close()
	if err := c.Send(protocol.NewUnreadCount(3)); err == nil {
		t.Error("Send on closed client succeeded")
	}
}
