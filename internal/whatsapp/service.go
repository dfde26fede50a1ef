// Package whatsapp owns the outbound WhatsApp transport: one whatsmeow
// client per connection row, paired via QR and persisted in a whatsmeow
// sqlstore that shares the application's database handle.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/app"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// Service keeps the live whatsmeow clients and mirrors their session state
// into the connection rows the dispatch engine reads.
type Service struct {
	app app.AppContext

	// clients keyed by our device JID string
	clients    map[string]*whatsmeow.Client
	clientsMux sync.RWMutex
	store      *sqlstore.Container

	// latest QR code per connection id, consumed by the pairing UI
	qrMap    map[int64]string
	qrMapMux sync.RWMutex
}

// New builds the service on a whatsmeow sqlstore wrapping the application's
// existing database connection, so session tables live next to our own.
func New(a app.AppContext) (*Service, error) {
	gdb := a.DB()
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, errors.Wrap(err, "whatsapp: obtain sql.DB")
	}

	driver := "postgres"
	if t := strings.ToLower(strings.TrimSpace(a.Config().Database.Type)); t == "sqlite" || t == "sqlite3" {
		driver = "sqlite3"
		// Some sqlite builds need FK support enabled per handle before the
		// sqlstore migrations run.
		if _, err := sqlDB.ExecContext(context.Background(), "PRAGMA foreign_keys = ON;"); err != nil {
			zap.L().Warn("whatsapp: unable to enable sqlite foreign_keys pragma", zap.Error(err))
		}
	}

	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(); err != nil {
		return nil, errors.Wrap(err, "whatsapp: sqlstore upgrade")
	}

	svc := &Service{
		app:     a,
		clients: make(map[string]*whatsmeow.Client),
		store:   container,
		qrMap:   make(map[int64]string),
	}

	devices, err := container.GetAllDevices()
	if err != nil {
		return nil, errors.Wrap(err, "whatsapp: list stored devices")
	}
	for _, d := range devices {
		svc.registerClient(whatsmeow.NewClient(d, nil))
	}

	zap.L().Info("whatsapp: service initialized",
		zap.Int("stored_devices", len(devices)),
		zap.String("driver", driver))
	return svc, nil
}

// Start connects every known client and blocks until the context is
// cancelled, then disconnects them all.
func (s *Service) Start(ctx context.Context) error {
	s.clientsMux.RLock()
	clients := make([]*whatsmeow.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMux.RUnlock()

	for _, c := range clients {
		go func(cli *whatsmeow.Client) {
			if err := cli.Connect(); err != nil {
				zap.L().Warn("whatsapp: client connect failed", zap.Error(err))
			}
		}(c)
	}

	<-ctx.Done()
	zap.L().Info("whatsapp: shutting down clients")
	s.clientsMux.RLock()
	for _, c := range s.clients {
		c.Disconnect()
	}
	s.clientsMux.RUnlock()
	return nil
}

// PairConnection provisions a fresh whatsmeow device for a connection row and
// starts pairing. The QR code arrives through the event handler and is
// retrievable with QRCode until login completes.
func (s *Service) PairConnection(ctx context.Context, connID int64) error {
	var conn domain.Whatsapp
	if err := s.app.DB().First(&conn, connID).Error; err != nil {
		return errors.Wrap(err, "whatsapp: load connection")
	}

	dev := s.store.NewDevice()
	dev.PushName = conn.Name

	client := whatsmeow.NewClient(dev, nil)
	s.bindConnection(client, connID)
	s.registerClient(client)

	s.setConnectionStatus(connID, domain.WhatsappStatusPairing, "")
	go func() {
		if err := client.Connect(); err != nil {
			zap.L().Warn("whatsapp: pairing connect failed",
				zap.Int64("connection_id", connID), zap.Error(err))
		}
	}()
	return nil
}

// QRCode returns the latest pairing code for a connection, empty when none is
// outstanding. The frontend renders the QR image client-side.
func (s *Service) QRCode(connID int64) string {
	s.qrMapMux.RLock()
	defer s.qrMapMux.RUnlock()
	return s.qrMap[connID]
}

// Disconnect drops the client for a connection and marks the row
// DISCONNECTED.
func (s *Service) Disconnect(connID int64) error {
	var conn domain.Whatsapp
	if err := s.app.DB().First(&conn, connID).Error; err != nil {
		return errors.Wrap(err, "whatsapp: load connection")
	}

	s.clientsMux.Lock()
	cli := s.clients[conn.Jid]
	delete(s.clients, conn.Jid)
	s.clientsMux.Unlock()
	if cli != nil {
		cli.Disconnect()
	}
	s.setConnectionStatus(connID, domain.WhatsappStatusDisconnected, conn.Jid)
	return nil
}

// clientFor resolves the live client for a connection row.
func (s *Service) clientFor(conn *domain.Whatsapp) (*whatsmeow.Client, error) {
	if conn.Jid == "" {
		return nil, errors.Errorf("whatsapp: connection %d has no paired device", conn.ID)
	}
	s.clientsMux.RLock()
	cli := s.clients[conn.Jid]
	s.clientsMux.RUnlock()
	if cli == nil {
		return nil, errors.Errorf("whatsapp: no client for %s", conn.Jid)
	}
	if !cli.IsConnected() {
		return nil, errors.Errorf("whatsapp: client %s not connected", conn.Jid)
	}
	return cli, nil
}

// bindConnection ties a pairing client to its connection row so QR and login
// events land on the right record.
func (s *Service) bindConnection(client *whatsmeow.Client, connID int64) {
	client.AddEventHandler(func(evt interface{}) {
		switch e := evt.(type) {
		case *events.QR:
			if len(e.Codes) == 0 {
				return
			}
			s.qrMapMux.Lock()
			s.qrMap[connID] = e.Codes[0]
			s.qrMapMux.Unlock()
			zap.L().Info("whatsapp: qr code issued", zap.Int64("connection_id", connID))
		case *events.PairSuccess:
			jid := e.ID.String()
			s.qrMapMux.Lock()
			delete(s.qrMap, connID)
			s.qrMapMux.Unlock()
			s.setConnectionStatus(connID, domain.WhatsappStatusConnected, jid)
			s.rekeyClient(client, jid)
			zap.L().Info("whatsapp: pairing complete",
				zap.Int64("connection_id", connID), zap.String("jid", jid))
		case *events.LoggedOut:
			s.setConnectionStatus(connID, domain.WhatsappStatusDisconnected, "")
			zap.L().Warn("whatsapp: device logged out", zap.Int64("connection_id", connID))
		}
	})
}

// registerClient indexes the client by its stored JID, or a pending key until
// pairing assigns one.
func (s *Service) registerClient(client *whatsmeow.Client) {
	var jid string
	if client.Store.ID != nil {
		jid = client.Store.ID.String()
	}
	if jid == "" {
		jid = fmt.Sprintf("pending:%d", client.Store.RegistrationID)
	}
	s.clientsMux.Lock()
	s.clients[jid] = client
	s.clientsMux.Unlock()
}

func (s *Service) rekeyClient(client *whatsmeow.Client, jid string) {
	if jid == "" {
		return
	}
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	for key, c := range s.clients {
		if c == client && key != jid {
			delete(s.clients, key)
		}
	}
	s.clients[jid] = client
}

func (s *Service) setConnectionStatus(connID int64, status, jid string) {
	updates := map[string]interface{}{"status": status}
	if jid != "" {
		updates["jid"] = jid
	}
	if err := s.app.DB().Model(&domain.Whatsapp{}).Where("id = ?", connID).Updates(updates).Error; err != nil {
		zap.L().Error("whatsapp: failed to update connection status",
			zap.Int64("connection_id", connID),
			zap.String("status", status),
			zap.Error(err))
	}
}
