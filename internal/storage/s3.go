package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// S3Config descreve um bucket compatível com S3 (AWS, MinIO, R2).
type S3Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	HTTPClient *http.Client
}

// S3Store implementa Store com requisições assinadas SigV4.
type S3Store struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

// NewS3Store valida a configuração e cria o store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &S3Store{cfg: cfg, client: client, now: time.Now}, nil
}

func (cfg S3Config) validate() error {
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return errors.New("storage: endpoint do S3 ausente")
	case !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://"):
		return errors.New("storage: endpoint deve incluir protocolo http/https")
	case strings.TrimSpace(cfg.Region) == "":
		return errors.New("storage: região do S3 ausente")
	case strings.TrimSpace(cfg.Bucket) == "":
		return errors.New("storage: bucket do S3 ausente")
	case strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "":
		return errors.New("storage: credenciais do S3 ausentes")
	}
	return nil
}

func (s *S3Store) objectURL(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if prefix := strings.Trim(s.cfg.Prefix, "/"); prefix != "" {
		cleaned = prefix + "/" + cleaned
	}
	escaped := (&url.URL{Path: cleaned}).EscapedPath()
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, escaped), nil
}

func (s *S3Store) do(ctx context.Context, method, key, contentType string, body []byte) (*http.Response, error) {
	target, err := s.objectURL(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.ContentLength = int64(len(body))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		req.Header.Set("Content-Type", contentType)
	}
	signer := sigV4{region: s.cfg.Region, accessKey: s.cfg.AccessKey, secretKey: s.cfg.SecretKey}
	signer.sign(req, body, s.now())
	return s.client.Do(req)
}

// Save envia o objeto com PUT.
func (s *S3Store) Save(ctx context.Context, key, contentType string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	resp, err := s.do(ctx, http.MethodPut, key, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "upload")
}

// Open baixa o objeto; o chamador fecha o corpo.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, key, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if err := checkStatus(resp, "download"); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Delete remove o objeto; 404 é tratado como sucesso.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, key, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "remoção")
}

func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("storage: %s falhou (%d): %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
