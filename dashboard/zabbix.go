package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// managementPrefixes are preferred when a host has several interfaces.
var managementPrefixes = []string{"10.78.", "10.79.", "10.80.", "10.81.", "10.82.", "10.83."}

// internalPrefix marks container networks, used only as a last resort.
const internalPrefix = "10.147."

// hostPrefixes are infrastructure prefixes stripped from host keys.
var hostPrefixes = []string{"SW_", "4CTA_", "RTR_", "FG_"}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth,omitempty"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("zabbix rpc %d: %s %s", e.Code, e.Message, e.Data)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type zabbixHost struct {
	Host       string `json:"host"`
	Name       string `json:"name"`
	Interfaces []struct {
		IP string `json:"ip"`
	} `json:"interfaces"`
}

// rpc performs one JSON-RPC call and decodes the result into out.
func (c *Correlator) rpc(ctx context.Context, method string, params any, auth string, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, Auth: auth, ID: 1})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.zabbix.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("zabbix %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return err
	}
	var rr rpcResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return fmt.Errorf("zabbix %s: decode: %w", method, err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	return json.Unmarshal(rr.Result, out)
}

// login authenticates against the API. Zabbix 5.4 renamed the "user"
// parameter to "username"; both are tried.
func (c *Correlator) login(ctx context.Context) (string, error) {
	var token string
	err := c.rpc(ctx, "user.login", map[string]string{
		"username": c.zabbix.Username,
		"password": c.zabbix.Password,
	}, "", &token)

	var re *rpcError
	if errors.As(err, &re) {
		err = c.rpc(ctx, "user.login", map[string]string{
			"user":     c.zabbix.Username,
			"password": c.zabbix.Password,
		}, "", &token)
	}
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("zabbix user.login: empty token")
	}
	return token, nil
}

// hostAddresses returns a host→IP map keyed by technical name, visible
// name and the normalised form of both.
func (c *Correlator) hostAddresses(ctx context.Context) (map[string]string, error) {
	if c.zabbix.APIURL == "" {
		return map[string]string{}, errors.New("zabbix api url not configured")
	}

	token, err := c.login(ctx)
	if err != nil {
		return map[string]string{}, err
	}

	var hosts []zabbixHost
	params := map[string]any{
		"output":           []string{"host", "name"},
		"selectInterfaces": []string{"ip"},
	}
	if err := c.rpc(ctx, "host.get", params, token, &hosts); err != nil {
		return map[string]string{}, err
	}

	ips := make(map[string]string, len(hosts)*4)
	for _, h := range hosts {
		addrs := make([]string, 0, len(h.Interfaces))
		for _, iface := range h.Interfaces {
			addrs = append(addrs, iface.IP)
		}
		ip := bestIP(addrs)
		if ip == "-" {
			continue
		}
		for _, key := range []string{h.Host, h.Name, hostKey(h.Host), hostKey(h.Name)} {
			if key != "" {
				ips[key] = ip
			}
		}
	}
	return ips, nil
}

// bestIP picks a management address when there is one, otherwise the
// first address outside the container network, otherwise the first
// address. Loopback and the unspecified address are ignored.
func bestIP(addrs []string) string {
	var usable []string
	for _, ip := range addrs {
		if ip == "" || ip == "127.0.0.1" || ip == "0.0.0.0" {
			continue
		}
		usable = append(usable, ip)
	}

	for _, ip := range usable {
		for _, prefix := range managementPrefixes {
			if strings.HasPrefix(ip, prefix) {
				return ip
			}
		}
	}
	for _, ip := range usable {
		if !strings.HasPrefix(ip, internalPrefix) {
			return ip
		}
	}
	if len(usable) > 0 {
		return usable[0]
	}
	return "-"
}

// hostKey normalises a host name so Grafana titles and Zabbix hosts can be
// matched: accents removed, upper-cased, infrastructure prefixes dropped,
// only letters and digits kept.
func hostKey(name string) string {
	if name == "" {
		return ""
	}
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	plain, _, err := transform.String(stripMarks, name)
	if err != nil {
		plain = name
	}
	plain = strings.ToUpper(plain)
	for _, prefix := range hostPrefixes {
		plain = strings.ReplaceAll(plain, prefix, "")
	}

	var b strings.Builder
	for _, r := range plain {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
