package daemon

import (
	"encoding/json"
	"net"
	"strconv"
	"sync/atomic"
)

type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

var reqCounter uint64

func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Call(method string, params any, out any) error {
	id := strconv.FormatUint(atomic.AddUint64(&reqCounter, 1), 10)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	if err := c.enc.Encode(Request{ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errorFromResponse(resp.Error)
	}
	if out != nil {
		return json.Unmarshal(resp.Result, out)
	}
	return nil
}

func (c *Client) Status() (StatusResult, error) {
	var result StatusResult
	return result, c.Call("Status", nil, &result)
}

func (c *Client) TabList() ([]TabInfo, error) {
	var result []TabInfo
	return result, c.Call("TabList", nil, &result)
}

func (c *Client) TabNew(url string) (TabInfo, error) {
	var result TabInfo
	return result, c.Call("TabNew", TabNewParams{URL: url}, &result)
}

func (c *Client) Goto(tab int, url string, timeoutMs int) error {
	return c.Call("Goto", GotoParams{Tab: tab, URL: url, TimeoutMs: timeoutMs}, nil)
}

func (c *Client) Probe(params ProbeParams) (ProbeResult, error) {
	var result ProbeResult
	return result, c.Call("Probe", params, &result)
}

func (c *Client) Day(params RunParams) (RunResult, error) {
	var result RunResult
	return result, c.Call("Day", params, &result)
}

func (c *Client) Week(params RunParams) (RunResult, error) {
	var result RunResult
	return result, c.Call("Week", params, &result)
}

func (c *Client) Eval(tab int, js string, timeoutMs int) (json.RawMessage, error) {
	var result json.RawMessage
	return result, c.Call("Eval", EvalParams{Tab: tab, JS: js, TimeoutMs: timeoutMs}, &result)
}

func (c *Client) Stop() error {
	return c.Call("Stop", nil, nil)
}
