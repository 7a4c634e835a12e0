package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/smsbridge/settings"
	"i4.energy/across/smsbridge/wifi"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeConnector struct {
	mu          sync.Mutex
	connected   bool
	link        net.IP
	refreshErr  error
	refreshes   int
	ip          net.IP
	err         error
	connects    []wifi.Credentials
	disconnects int
}

func (f *fakeConnector) Connect(_ context.Context, creds wifi.Credentials) (net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, creds)
	if f.err != nil {
		f.connected = false
		return nil, f.err
	}
	f.connected = true
	return f.ip, nil
}

func (f *fakeConnector) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

// Refresh reports link as the address the host already has.
func (f *fakeConnector) Refresh(context.Context) (wifi.Status, error) {
	f.mu.Lock()
	f.refreshes++
	if f.refreshErr == nil {
		f.connected = f.link != nil
		if f.connected {
			f.ip = f.link
		}
	}
	err := f.refreshErr
	f.mu.Unlock()
	return f.Status(), err
}

func (f *fakeConnector) Status() wifi.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return wifi.Status{IPAddress: wifi.NoAddress}
	}
	return wifi.Status{Connected: true, IPAddress: f.ip.String()}
}

type recorder struct {
	mu     sync.Mutex
	notes  []string
	starts int
	stops  int
}

func (r *recorder) Notify(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, msg)
	return nil
}

func (r *recorder) StartAdvertising(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *recorder) StopAdvertising(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *recorder) notifications() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...)
}

type staticStatus []byte

func (s staticStatus) JSON() ([]byte, error) { return s, nil }

type handlerFixture struct {
	h        *Handler
	store    *settings.BadgerStore
	wifi     *fakeConnector
	rec      *recorder
	changes  int
	restarts int
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store, err := settings.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &handlerFixture{
		store: store,
		wifi:  &fakeConnector{ip: net.IPv4(192, 168, 1, 42)},
		rec:   &recorder{},
	}
	f.h = NewHandler(store, settings.Default(), f.wifi, staticStatus(`{"modem":{"registered":true}}`),
		WithNotifier(f.rec),
		WithAdvertiser(f.rec),
		WithLogger(discard),
		WithOnChange(func() { f.changes++ }),
		WithRestart(func() { f.restarts++ }),
	)
	return f
}

func write(payload string) Event {
	return Event{Kind: ConfigWrite, Client: "test", Payload: []byte(payload)}
}

func TestHandlerWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("credentials connect and notify", func(t *testing.T) {
		f := newHandlerFixture(t)
		require.NoError(t, f.h.Handle(ctx, write(`{"ssid":"office","password":"hunter22"}`)))

		require.Len(t, f.wifi.connects, 1)
		assert.Equal(t, wifi.Credentials{SSID: "office", Password: "hunter22", Hostname: settings.DefaultDeviceName}, f.wifi.connects[0])
		assert.Equal(t, []string{"S:WC,NR,IP:192.168.1.42"}, f.rec.notifications())
		assert.Equal(t, 1, f.changes)
		assert.Zero(t, f.restarts)

		stored, err := f.store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "office", stored.SSID)
		assert.Equal(t, "hunter22", stored.Password)
		assert.Equal(t, stored, f.h.Settings())
	})

	t.Run("connect failure", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.wifi.err = errors.New("secrets were required")
		require.NoError(t, f.h.Handle(ctx, write(`{"ssid":"office","password":"wrong"}`)))
		assert.Equal(t, []string{NotifyConnectFailed}, f.rec.notifications())

		// The credentials are kept even though they did not work.
		stored, err := f.store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "office", stored.SSID)
	})

	t.Run("reconnect drops the current network first", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.wifi.connected = true
		require.NoError(t, f.h.Handle(ctx, write(`{"ssid":"b","password":"pw"}`)))
		assert.Equal(t, 1, f.wifi.disconnects)
		assert.Len(t, f.wifi.connects, 1)
	})

	t.Run("device name", func(t *testing.T) {
		f := newHandlerFixture(t)
		require.NoError(t, f.h.Handle(ctx, write(`{"deviceName":"gw-07"}`)))
		assert.Empty(t, f.wifi.connects)
		assert.Equal(t, []string{NotifySettingsChanged}, f.rec.notifications())
		assert.Equal(t, "gw-07", f.h.Settings().DeviceName)
		assert.Equal(t, 1, f.changes)
	})

	t.Run("name and credentials", func(t *testing.T) {
		f := newHandlerFixture(t)
		require.NoError(t, f.h.Handle(ctx, write(`{"deviceName":"gw-08","ssid":"x","password":"y"}`)))
		require.Len(t, f.wifi.connects, 1)
		assert.Equal(t, "gw-08", f.wifi.connects[0].Hostname)
		assert.Equal(t, []string{"S:WC,NR,IP:192.168.1.42", NotifySettingsChanged}, f.rec.notifications())
	})

	t.Run("ssid without password is ignored", func(t *testing.T) {
		f := newHandlerFixture(t)
		require.NoError(t, f.h.Handle(ctx, write(`{"ssid":"office"}`)))
		assert.Empty(t, f.wifi.connects)
		assert.Empty(t, f.rec.notifications())
		assert.Zero(t, f.changes)
		assert.Equal(t, settings.Default(), f.h.Settings())
	})

	t.Run("wrong types are ignored", func(t *testing.T) {
		f := newHandlerFixture(t)
		require.NoError(t, f.h.Handle(ctx, write(`{"deviceName":12,"ssid":true,"password":"x"}`)))
		assert.Empty(t, f.wifi.connects)
		assert.Zero(t, f.changes)
	})

	t.Run("restart", func(t *testing.T) {
		f := newHandlerFixture(t)
		require.NoError(t, f.h.Handle(ctx, write(`{"restart":true}`)))
		assert.Equal(t, 1, f.restarts)
		assert.Zero(t, f.changes)

		require.NoError(t, f.h.Handle(ctx, write(`{"restart":false}`)))
		assert.Equal(t, 1, f.restarts)
	})

	t.Run("invalid payload", func(t *testing.T) {
		f := newHandlerFixture(t)
		err := f.h.Handle(ctx, write(`{not json`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
		err = f.h.Handle(ctx, Event{Kind: ConfigWrite})
		assert.ErrorIs(t, err, ErrEmptyPayload)
		assert.Zero(t, f.changes)
	})
}

func TestHandlerRead(t *testing.T) {
	f := newHandlerFixture(t)
	var got []byte
	err := f.h.Handle(context.Background(), Event{Kind: ConfigRead, Reply: func(b []byte) { got = b }})
	require.NoError(t, err)
	assert.JSONEq(t, `{"modem":{"registered":true}}`, string(got))

	// A read without a reply channel is harmless.
	require.NoError(t, f.h.Handle(context.Background(), Event{Kind: ConfigRead}))
}

func TestHandlerClients(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)

	require.NoError(t, f.h.Handle(ctx, Event{Kind: Connected}))
	require.NoError(t, f.h.Handle(ctx, Event{Kind: Connected}))
	assert.Equal(t, 2, f.h.Clients())

	require.NoError(t, f.h.Handle(ctx, Event{Kind: Disconnected}))
	assert.Equal(t, 1, f.h.Clients())
	assert.Equal(t, 1, f.rec.starts, "not on the network, advertising resumes")

	f.wifi.connected = true
	require.NoError(t, f.h.Handle(ctx, Event{Kind: Disconnected}))
	require.NoError(t, f.h.Handle(ctx, Event{Kind: Disconnected}))
	assert.Zero(t, f.h.Clients())
	assert.Equal(t, 1, f.rec.starts)
}

func TestHandlerUnknownEvent(t *testing.T) {
	f := newHandlerFixture(t)
	err := f.h.Handle(context.Background(), Event{Kind: EventKind(42)})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Contains(t, err.Error(), "EventKind(42)")
}

func TestHousekeep(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)

	f.h.Housekeep(ctx)
	assert.Equal(t, 1, f.rec.starts)
	assert.Zero(t, f.rec.stops)

	f.wifi.connected = true
	f.h.Housekeep(ctx)
	assert.Equal(t, 1, f.rec.starts)
	assert.Equal(t, 1, f.rec.stops)

	// Without an advertiser there is nothing to do.
	h := NewHandler(f.store, settings.Default(), f.wifi, staticStatus(`{}`), WithLogger(discard))
	h.Housekeep(ctx)
}

func TestHandlerStart(t *testing.T) {
	ctx := context.Background()
	stored := settings.Settings{DeviceName: "gw-03", SSID: "office", Password: "hunter22"}

	newStarted := func(t *testing.T, s settings.Settings, conn *fakeConnector) *recorder {
		t.Helper()
		store, err := settings.OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		rec := &recorder{}
		h := NewHandler(store, s, conn, staticStatus(`{}`),
			WithNotifier(rec), WithAdvertiser(rec), WithLogger(discard))
		h.Start(ctx)
		return rec
	}

	t.Run("host already on a network", func(t *testing.T) {
		conn := &fakeConnector{link: net.IPv4(10, 0, 0, 9)}
		rec := newStarted(t, stored, conn)

		assert.Empty(t, conn.connects)
		assert.Equal(t, wifi.Status{Connected: true, IPAddress: "10.0.0.9"}, conn.Status())
		assert.Equal(t, 1, rec.stops)
		assert.Zero(t, rec.starts)
	})

	t.Run("stored credentials are used", func(t *testing.T) {
		conn := &fakeConnector{ip: net.IPv4(192, 168, 1, 42)}
		rec := newStarted(t, stored, conn)

		require.Len(t, conn.connects, 1)
		assert.Equal(t, wifi.Credentials{SSID: "office", Password: "hunter22", Hostname: "gw-03"}, conn.connects[0])
		assert.True(t, conn.Status().Connected)
		assert.Equal(t, 1, rec.stops)
		assert.Empty(t, rec.notifications())
	})

	t.Run("stored network unreachable", func(t *testing.T) {
		conn := &fakeConnector{err: errors.New("no network with SSID")}
		rec := newStarted(t, stored, conn)

		assert.Len(t, conn.connects, 1)
		assert.Equal(t, 1, rec.starts)
		assert.Zero(t, rec.stops)
	})

	t.Run("nothing stored", func(t *testing.T) {
		conn := &fakeConnector{}
		rec := newStarted(t, settings.Default(), conn)

		assert.Empty(t, conn.connects)
		assert.Equal(t, 1, conn.refreshes)
		assert.Equal(t, 1, rec.starts)
	})

	t.Run("state unreadable", func(t *testing.T) {
		conn := &fakeConnector{refreshErr: errors.New("nmcli not found"), ip: net.IPv4(192, 168, 1, 42)}
		rec := newStarted(t, stored, conn)

		assert.Len(t, conn.connects, 1)
		assert.Equal(t, 1, rec.stops)
	})
}
