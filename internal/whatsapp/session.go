package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/lib/pq"
)

// OpenSession connects the first device stored at storeURI. The device must
// already be paired.
func OpenSession(ctx context.Context, storeURI, logLevel string) (*whatsmeow.Client, error) {
	if !strings.HasPrefix(storeURI, "postgres") {
		return nil, fmt.Errorf("unsupported whatsapp store %q: only postgres is supported", storeURI)
	}
	container, err := sqlstore.New(ctx, "postgres", storeURI, waLog.Stdout("Database", logLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsapp device: %w", err)
	}
	if device.ID == nil {
		return nil, fmt.Errorf("whatsapp device is not paired")
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", logLevel, true))
	client.EnableAutoReconnect = true
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect whatsapp client: %w", err)
	}
	logrus.WithField("jid", device.ID.String()).Info("[VALIDATOR] WhatsApp session connected")
	return client, nil
}

var _ Checker = (*whatsmeow.Client)(nil)
