package preview

import (
	"fmt"
	"os"

	"github.com/hashicorp/mdns"
)

// advertise publishes the preview server as ServiceType on port. An empty
// instance uses the host name.
func advertise(instance string, port int) (*mdns.Server, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	service, err := mdns.NewMDNSService(
		instance,
		ServiceType,
		"", // .local
		"", // OS host name
		port,
		nil, // all interface addresses
		[]string{"path=/ws", "snapshot=/snapshot.png"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Discover looks up preview servers on the local network and returns their
// host:port addresses. It blocks for the mdns default query timeout.
func Discover() ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan []string, 1)
	go func() {
		var addrs []string
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", e.AddrV4, e.Port))
		}
		found <- addrs
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	addrs := <-found
	if err != nil {
		return nil, fmt.Errorf("mdns lookup: %w", err)
	}
	return addrs, nil
}
