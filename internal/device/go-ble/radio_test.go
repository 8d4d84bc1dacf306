package goble

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter replays advertisements and then waits for the scan window to
// close.
type fakeAdapter struct {
	adverts []ble.Advertisement
	scanErr error
}

func (a *fakeAdapter) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	if a.scanErr != nil {
		return a.scanErr
	}
	for _, adv := range a.adverts {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *fakeAdapter) Dial(context.Context, ble.Addr) (ble.Client, error) {
	return nil, errors.New("dial not scripted")
}

func newTestRadio(dev adapter) *Radio {
	r := NewRadio(testutils.NewSilentLogger(), Options{ConnectTimeout: time.Second})
	r.dev = dev
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r
}

func TestRadioScanDeliversConvertedAdvertisements(t *testing.T) {
	dev := &fakeAdapter{adverts: []ble.Advertisement{
		testutils.NewAdvertisementBuilder().WithAddress("aa:bb:cc:dd:ee:01").WithName("Lab").WithRSSI(-41).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("aa:bb:cc:dd:ee:02").WithRSSI(-77).Build(),
	}}
	r := newTestRadio(dev)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	var got []device.Advertisement
	err := r.Scan(ctx, func(a device.Advertisement) { got = append(got, a) })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, got, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", got[0].Address)
	assert.Equal(t, "Lab", got[0].Name)
	assert.Equal(t, -41, got[0].RSSI)
	assert.Equal(t, time.Unix(1700000000, 0), got[0].Timestamp)
	assert.Equal(t, -77, got[1].RSSI)
}

func TestRadioScanFailureIsRadioUnavailable(t *testing.T) {
	r := newTestRadio(&fakeAdapter{scanErr: errors.New("can't init hci: no devices available")})

	err := r.Scan(t.Context(), func(device.Advertisement) {})
	assert.ErrorIs(t, err, device.ErrRadioUnavailable)
}

func TestRadioOpenFailureIsRadioUnavailable(t *testing.T) {
	orig := DeviceFactory
	t.Cleanup(func() { DeviceFactory = orig })
	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("operation not permitted")
	}

	r := NewRadio(testutils.NewSilentLogger(), Options{})
	err := r.Scan(t.Context(), func(device.Advertisement) {})
	assert.ErrorIs(t, err, device.ErrRadioUnavailable)

	_, err = r.Connect(t.Context(), "aa:bb:cc:dd:ee:ff", device.AddressRandom)
	assert.ErrorIs(t, err, device.ErrRadioUnavailable)
}

func TestRadioConnect(t *testing.T) {
	r := newTestRadio(&fakeAdapter{})
	client := testutils.NewMockGATTClient()

	var dialed ble.Addr
	r.dial = func(ctx context.Context, a ble.Addr) (Client, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "dial must be bounded by the connect timeout")
		dialed = a
		return client, nil
	}

	link, err := r.Connect(t.Context(), "AA:BB:CC:DD:EE:FF", device.AddressRandom)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", link.Address())
	require.NotNil(t, dialed)
	assert.True(t, strings.EqualFold("aa:bb:cc:dd:ee:ff", dialed.String()))
}

func TestRadioConnectFailures(t *testing.T) {
	r := newTestRadio(&fakeAdapter{})
	r.dial = func(context.Context, ble.Addr) (Client, error) {
		return nil, context.DeadlineExceeded
	}

	_, err := r.Connect(t.Context(), "aa:bb:cc:dd:ee:ff", device.AddressPublic)
	assert.ErrorIs(t, err, device.ErrConnectionFailed)
	assert.ErrorIs(t, err, device.ErrTimeout)

	_, err = r.Connect(t.Context(), "  ", device.AddressPublic)
	assert.ErrorIs(t, err, device.ErrConnectionFailed)
}
