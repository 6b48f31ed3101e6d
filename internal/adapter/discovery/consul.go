package discovery

import (
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
)

type ConsulClient struct {
	client *api.Client
}

type ServiceConfig struct {
	Name string
	ID   string
	// Addr is the HTTP listen address, e.g. ":8080". The health check hits
	// /health on it.
	Addr string
	Tags []string
}

func NewConsulClient(addr string) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("connect consul: %w", err)
	}

	return &ConsulClient{client: client}, nil
}

func (c *ConsulClient) Register(cfg ServiceConfig) error {
	registration, err := buildRegistration(cfg, outboundIP())
	if err != nil {
		return err
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("register service %s: %w", cfg.ID, err)
	}

	log.Printf("discovery: registered %s (%s) at %s:%d", cfg.Name, cfg.ID, registration.Address, registration.Port)
	return nil
}

func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("deregister service %s: %w", serviceID, err)
	}

	log.Printf("discovery: deregistered %s", serviceID)
	return nil
}

func buildRegistration(cfg ServiceConfig, hostIP string) (*api.AgentServiceRegistration, error) {
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse service addr %q: %w", cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse service port %q: %w", portStr, err)
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		hostIP = host
	}

	return &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    port,
		Address: hostIP,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s/health", net.JoinHostPort(hostIP, portStr)),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}, nil
}

// outboundIP returns the address other hosts should use to reach us. No
// packet is sent.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
