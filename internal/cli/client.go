package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// InstanceResponse — instance из API.
type InstanceResponse struct {
	ID        string `json:"id"`
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at"`
}

// GroupResponse — групповой чат из API.
type GroupResponse struct {
	JID  string `json:"jid"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

// EventResponse — событие сессии из WebSocket-стрима.
type EventResponse struct {
	Kind string `json:"kind"`
	Code string `json:"code,omitempty"`
	At   string `json:"at"`
}

// MessageSpec — один элемент шаблона рассылки.
type MessageSpec struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	File string `json:"file,omitempty"`
	PTT  bool   `json:"ptt,omitempty"`
}

// ProgressResponse — сводка выполнения кампании.
type ProgressResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// CampaignResponse — кампания из API.
type CampaignResponse struct {
	ID                 string            `json:"id"`
	TargetChatID       string            `json:"target_chat_id"`
	Messages           []MessageSpec     `json:"messages"`
	MinDelaySec        int               `json:"min_delay_sec"`
	MaxDelaySec        int               `json:"max_delay_sec"`
	MinMessageDelaySec int               `json:"min_message_delay_sec"`
	MaxMessageDelaySec int               `json:"max_message_delay_sec"`
	MinTypingSec       int               `json:"min_typing_sec"`
	MaxTypingSec       int               `json:"max_typing_sec"`
	BlockAdmins        bool              `json:"block_admins"`
	Active             bool              `json:"active"`
	InstanceIDs        []string          `json:"instance_ids"`
	CreatedAt          string            `json:"created_at"`
	Progress           *ProgressResponse `json:"progress,omitempty"`
}

// --- Request types ---

// CreateCampaignRequest — создание кампании.
type CreateCampaignRequest struct {
	TargetChatID       string        `json:"target_chat_id"`
	Messages           []MessageSpec `json:"messages"`
	MinDelaySec        int           `json:"min_delay_sec"`
	MaxDelaySec        int           `json:"max_delay_sec"`
	MinMessageDelaySec int           `json:"min_message_delay_sec"`
	MaxMessageDelaySec int           `json:"max_message_delay_sec"`
	MinTypingSec       int           `json:"min_typing_sec"`
	MaxTypingSec       int           `json:"max_typing_sec"`
	BlockAdmins        bool          `json:"block_admins"`
	InstanceIDs        []string      `json:"instance_ids"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Fanline API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Instances ---

// ListInstances возвращает все instances.
func (c *Client) ListInstances() ([]InstanceResponse, error) {
	var instances []InstanceResponse
	err := c.list("/api/v1/instances", &instances)
	return instances, err
}

// CreateInstance регистрирует новый instance.
func (c *Client) CreateInstance() (*InstanceResponse, error) {
	var inst InstanceResponse
	err := c.post("/api/v1/instances", nil, &inst)
	return &inst, err
}

// GetInstance возвращает instance по ID.
func (c *Client) GetInstance(id string) (*InstanceResponse, error) {
	var inst InstanceResponse
	err := c.get("/api/v1/instances/"+id, &inst)
	return &inst, err
}

// DeleteInstance удаляет instance.
func (c *Client) DeleteInstance(id string) error {
	return c.delete("/api/v1/instances/" + id)
}

// ListGroups возвращает групповые чаты instance.
func (c *Client) ListGroups(instanceID string) ([]GroupResponse, error) {
	var groups []GroupResponse
	err := c.list("/api/v1/instances/"+instanceID+"/groups", &groups)
	return groups, err
}

// StreamEvents открывает WebSocket-стрим событий instance.
// Возвращённая функция закрывает соединение.
func (c *Client) StreamEvents(instanceID string) (<-chan EventResponse, func(), error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/api/v1/instances/" + instanceID + "/events"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("websocket dial: HTTP %d", resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("websocket dial: %w", err)
	}

	events := make(chan EventResponse)
	go func() {
		defer close(events)
		for {
			var evt EventResponse
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			events <- evt
		}
	}()

	return events, func() { conn.Close() }, nil
}

// --- Campaigns ---

// ListCampaigns возвращает все кампании.
func (c *Client) ListCampaigns() ([]CampaignResponse, error) {
	var campaigns []CampaignResponse
	err := c.list("/api/v1/campaigns", &campaigns)
	return campaigns, err
}

// CreateCampaign создаёт кампанию и сразу запускает рассылку.
func (c *Client) CreateCampaign(req CreateCampaignRequest) (*CampaignResponse, error) {
	var campaign CampaignResponse
	err := c.post("/api/v1/campaigns", req, &campaign)
	return &campaign, err
}

// GetCampaign возвращает кампанию со сводкой выполнения.
func (c *Client) GetCampaign(id string) (*CampaignResponse, error) {
	var campaign CampaignResponse
	err := c.get("/api/v1/campaigns/"+id, &campaign)
	return &campaign, err
}

// MediaResponse — результат загрузки файла рассылки.
type MediaResponse struct {
	File string `json:"file"`
	Size int64  `json:"size"`
}

// UploadMedia загружает файл рассылки на сервер и возвращает имя,
// под которым он сохранён (его указывают в messages[].file).
func (c *Client) UploadMedia(path string) (*MediaResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/media", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	var media MediaResponse
	if err := json.Unmarshal(dr.Data, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// StartCampaignRequest — тело запуска кампании. Непустой InstanceIDs
// заменяет набор instances кампании.
type StartCampaignRequest struct {
	InstanceIDs []string `json:"instance_ids,omitempty"`
}

// StartCampaign возобновляет остановленную кампанию, при необходимости
// заменяя её instances.
func (c *Client) StartCampaign(id string, instanceIDs []string) error {
	var body any
	if len(instanceIDs) > 0 {
		body = StartCampaignRequest{InstanceIDs: instanceIDs}
	}
	return c.post("/api/v1/campaigns/"+id+"/start", body, nil)
}

// StopCampaign останавливает кампанию.
func (c *Client) StopCampaign(id string) error {
	return c.post("/api/v1/campaigns/"+id+"/stop", nil, nil)
}

// DeleteCampaign удаляет кампанию вместе с jobs.
func (c *Client) DeleteCampaign(id string) error {
	return c.delete("/api/v1/campaigns/" + id)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
