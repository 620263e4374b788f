package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohits-web03/nimbus/internal/apperr"
)

type hordeParams struct {
	Steps       int     `json:"steps"`
	CfgScale    float64 `json:"cfg_scale"`
	SamplerName string  `json:"sampler_name"`
}

type hordeSubmit struct {
	Prompt string      `json:"prompt"`
	NSFW   bool        `json:"nsfw"`
	Params hordeParams `json:"params"`
}

type hordeStatus struct {
	Done        bool `json:"done"`
	Faulted     bool `json:"faulted"`
	Generations []struct {
		Img string `json:"img"`
	} `json:"generations"`
}

// HordeClient drives the Stable Horde async generation API.
type HordeClient struct {
	submitURL string
	statusURL string
	apiKey    string
	http      *http.Client
}

func NewHordeClient(submitURL, statusURL, apiKey string, timeout time.Duration) *HordeClient {
	return &HordeClient{
		submitURL: submitURL,
		statusURL: strings.TrimRight(statusURL, "/"),
		apiKey:    apiKey,
		http:      newHTTPClient(timeout),
	}
}

func (c *HordeClient) Submit(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(hordeSubmit{
		Prompt: prompt,
		NSFW:   true,
		Params: hordeParams{Steps: 20, CfgScale: 7, SamplerName: "k_euler"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal image request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Upstream("Image API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", statusError("Image", resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := decode("Image", resp.Body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Status reports whether the job finished and, if so, its first image.
func (c *HordeClient) Status(ctx context.Context, jobID string) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL+"/"+url.PathEscape(jobID), nil)
	if err != nil {
		return false, "", fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, "", apperr.Upstream("Image API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", statusError("Image", resp)
	}
	var out hordeStatus
	if err := decode("Image", resp.Body, &out); err != nil {
		return false, "", err
	}
	if out.Faulted {
		return true, "", nil
	}
	if !out.Done {
		return false, "", nil
	}
	if len(out.Generations) == 0 {
		return true, "", nil
	}
	return true, out.Generations[0].Img, nil
}
