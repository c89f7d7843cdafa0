package restapi

import (
	"context"
	"net/http"
	"slices"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/app/subscription"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const defaultStreamWriteTimeout = 10 * time.Second

// StreamMessage is one frame pushed to a snapshot stream client.
type StreamMessage struct {
	Type      string                 `json:"type"` // "snapshot" or "error"
	Snapshot  *entity.WalletSnapshot `json:"snapshot,omitempty"`
	Error     *ErrorDetail           `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SnapshotStream pushes periodic wallet snapshots over a websocket, one subscription per
// connection.
type SnapshotStream struct {
	svc          port.WalletService
	opts         subscription.Options
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewSnapshotStream creates the stream handler. An empty allowedOrigins accepts any origin.
func NewSnapshotStream(svc port.WalletService, opts subscription.Options, allowedOrigins []string, logger *zap.Logger) *SnapshotStream {
	return &SnapshotStream{
		svc:  svc,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		writeTimeout: defaultStreamWriteTimeout,
		logger:       logger.Named("SnapshotStream"),
	}
}

func (s *SnapshotStream) Serve(c *gin.Context) {
	address := c.Param("address")
	if !utils.IsAddress(address) {
		c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(ErrorCodeInvalidRequest, "invalid address"))
		return
	}
	chains := utils.SplitCSV(c.Query("chains"))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.String("address", address), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	updates := make(chan StreamMessage, 1)
	sub := subscription.Subscribe(ctx,
		func(ctx context.Context) (*entity.WalletSnapshot, error) {
			return s.svc.GetSnapshot(ctx, address, chains)
		},
		func(snapshot *entity.WalletSnapshot, err error) {
			msg := StreamMessage{Type: "snapshot", Snapshot: snapshot, Timestamp: time.Now().UTC()}
			if err != nil {
				msg = StreamMessage{
					Type:      "error",
					Error:     &ErrorDetail{Code: classify(err), Message: err.Error()},
					Timestamp: msg.Timestamp,
				}
			}
			select {
			case updates <- msg:
			case <-ctx.Done():
			}
		},
		s.opts, s.logger)
	log := s.logger.With(zap.String("address", address), zap.String("subscriptionID", sub.ID()))
	log.Info("Snapshot stream opened")

	// cancel must run before Unsubscribe so a callback blocked on updates can return.
	defer func() {
		cancel()
		sub.Unsubscribe()
		log.Info("Snapshot stream closed")
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-updates:
			if err := s.write(conn, msg); err != nil {
				log.Debug("Snapshot stream write failed", zap.Error(err))
				return
			}
		case <-sub.Done():
			select {
			case msg := <-updates:
				_ = s.write(conn, msg)
			default:
			}
			deadline := time.Now().Add(s.writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription stopped"), deadline)
			return
		}
	}
}

func (s *SnapshotStream) write(conn *websocket.Conn, msg StreamMessage) error {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}
