// Package smartconnect is a minimal Angel One SmartAPI client covering the
// calls the relay needs: session creation (password + TOTP), logout, profile,
// and order placement. Routes and headers follow the official SmartAPI spec.
//
// Usage:
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: "your_api_key"})
//	sess, err := sc.GenerateSession("CLIENTCODE", "PASSWORD", "123456")
//	if err != nil { log.Fatal(err) }
//	orderID, err := sc.PlaceOrder(smartconnect.OrderParams{ ... })
package smartconnect

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
}

// Config configures the SmartAPI client.
type Config struct {
	APIKey string

	RootURL    string        // default: https://apiconnect.angelone.in
	Timeout    time.Duration // default: 7s
	Debug      bool
	ProxyURL   string // optional HTTP proxy URL
	DisableSSL bool   // if true, InsecureSkipVerify

	// Client identity headers required by SmartAPI. Resolved automatically
	// when left empty; set explicitly to skip network discovery (tests).
	ClientPublicIP string
	ClientLocalIP  string
	ClientMAC      string
}

// Client is a SmartAPI HTTP client. Safe for concurrent use; the access
// token is guarded so order placement can run while a re-login swaps it.
type Client struct {
	apiKey  string
	rootURL string
	debug   bool

	httpClient *http.Client

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	mu          sync.RWMutex
	accessToken string
}

// SessionData is the token set returned by a successful login.
type SessionData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// OrderParams is the placeOrder request body. Quantity and Price are strings
// on the wire; Price is omitted entirely for market orders.
type OrderParams struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Quantity        string `json:"quantity"`
	Price           string `json:"price,omitempty"`
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// New initializes the client. Missing identity headers are resolved from the
// local interfaces and a public IP lookup, with hard-coded fallbacks.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.ClientPublicIP == "" || cfg.ClientLocalIP == "" {
		localIP, err := localIP()
		if err != nil {
			log.Printf("[smartconnect] local IP lookup failed: %v", err)
		}
		publicIP, err := publicIP()
		if err != nil {
			log.Printf("[smartconnect] public IP lookup failed: %v", err)
		}
		cfg.ClientPublicIP = firstNonEmpty(cfg.ClientPublicIP, publicIP, "106.193.147.98")
		cfg.ClientLocalIP = firstNonEmpty(cfg.ClientLocalIP, localIP, "127.0.0.1")
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macFallback()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.DisableSSL,
		},
	}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &Client{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

// SetAccessToken replaces the bearer token used for secure routes.
func (sc *Client) SetAccessToken(t string) {
	sc.mu.Lock()
	sc.accessToken = t
	sc.mu.Unlock()
}

// GenerateSession logs in with client code, password and a TOTP code, stores
// the returned JWT as the access token, and returns the full token set.
func (sc *Client) GenerateSession(clientCode, password, totp string) (*SessionData, error) {
	env, raw, err := sc.post("api.login", map[string]string{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totp,
	})
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("login failed: %s", string(raw))
	}

	var sess SessionData
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		return nil, fmt.Errorf("unexpected login response format: %w", err)
	}
	if sess.JWTToken == "" {
		return nil, fmt.Errorf("login response missing jwtToken: %s", string(raw))
	}
	sc.SetAccessToken(sess.JWTToken)
	return &sess, nil
}

// TerminateSession logs the client out.
func (sc *Client) TerminateSession(clientCode string) error {
	env, raw, err := sc.post("api.logout", map[string]string{"clientcode": clientCode})
	if err != nil {
		return err
	}
	if !env.Status {
		return fmt.Errorf("logout failed: %s", string(raw))
	}
	sc.SetAccessToken("")
	return nil
}

// Profile fetches the logged-in user profile.
func (sc *Client) Profile(refreshToken string) (json.RawMessage, error) {
	env, raw, err := sc.post("api.user.profile", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("profile fetch failed: %s", string(raw))
	}
	return env.Data, nil
}

// PlaceOrder submits an order and returns the broker order id. A
// broker-reported rejection comes back as an error carrying the raw response
// so callers can surface the diagnostic text.
func (sc *Client) PlaceOrder(params OrderParams) (string, error) {
	env, raw, err := sc.post("api.order.place", params)
	if err != nil {
		return "", err
	}
	if !env.Status {
		return "", fmt.Errorf("place order failed: %s", string(raw))
	}
	var data struct {
		OrderID string `json:"orderid"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.OrderID == "" {
		return "", fmt.Errorf("invalid place order response: %s", string(raw))
	}
	return data.OrderID, nil
}

func (sc *Client) post(route string, body any) (*envelope, []byte, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := sc.rootURL + uri

	b, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, reqURL, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header = sc.requestHeaders()

	if sc.debug {
		log.Printf("[smartconnect] POST %s body=%s", reqURL, string(b))
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		log.Printf("[smartconnect] HTTP error: POST %s err=%v", reqURL, err)
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if sc.debug {
		log.Printf("[smartconnect] response: code=%d body=%s", resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, fmt.Errorf("couldn't parse JSON response (code=%d): %w", resp.StatusCode, err)
	}
	if !env.Status {
		log.Printf("[smartconnect] API request failed: POST %s status=false message=%s", reqURL, env.Message)
	}
	return &env, raw, nil
}

func (sc *Client) requestHeaders() http.Header {
	sc.mu.RLock()
	token := sc.accessToken
	sc.mu.RUnlock()

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func publicIP() (string, error) {
	resp, err := http.Get("https://api.ipify.org?format=text")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ip, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(ip), nil
}

func localIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

func macFallback() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
