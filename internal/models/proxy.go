package models

import (
	"fmt"
	"time"
)

// ProxyStatus represents the health state of a proxy
type ProxyStatus string

const (
	ProxyActive   ProxyStatus = "active"
	ProxyInactive ProxyStatus = "inactive"
	ProxyBanned   ProxyStatus = "banned"
	ProxyError    ProxyStatus = "error"
)

// ProxyType classifies the proxy's origin network
type ProxyType string

const (
	ProxyResidential ProxyType = "residential"
	ProxyDatacenter  ProxyType = "datacenter"
	ProxyMobile      ProxyType = "mobile"
)

// Proxy is a network egress resource optionally bound to an account
type Proxy struct {
	ID          string      `json:"id"`
	Host        string      `json:"host"`
	Port        int         `json:"port"`
	Username    string      `json:"username,omitempty"`
	Password    string      `json:"-"`
	Type        ProxyType   `json:"type"`
	Status      ProxyStatus `json:"status"`
	LatencyMS   int         `json:"latency_ms,omitempty"`
	LastChecked *time.Time  `json:"last_checked,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Addr returns the host:port form used when configuring an upload session
func (p *Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// ProxyListFilter for filtering proxies
type ProxyListFilter struct {
	Status ProxyStatus
	Limit  int
	Offset int
}
