package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/platform/logger"
)

const (
	payloadNamespaceKey = "_cg_namespace"
	payloadVectorIDKey  = "_cg_vector_id"
	maxErrorBodyBytes   = 1024
	defaultTopK         = 10
)

var pointIDSpace = uuid.MustParse("0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8")

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	http     *http.Client
}

// envelope is the body every Qdrant REST call answers with.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type searchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// NewVectorStore checks the collection before returning, creating it when
// cfg.CreateCollection is set.
func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg = cfg.withDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &vectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: cfg.NamespacePrefix,
		http:     &http.Client{Timeout: cfg.Timeout},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	s.log.Info("Qdrant vector store ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"vector_dim", cfg.VectorDim,
		"distance", cfg.Distance,
	)
	return s, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	ns := s.qualify(namespace)
	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if err := s.checkDim(op, id, v.Values); err != nil {
			return err
		}
		payload := make(map[string]any, len(v.Metadata)+2)
		for k, val := range v.Metadata {
			payload[k] = val
		}
		payload[payloadNamespaceKey] = ns
		payload[payloadVectorIDKey] = id
		points = append(points, map[string]any{
			"id":      s.pointID(ns, id),
			"vector":  v.Values,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// QueryMatches returns the nearest vectors of namespace, best first. Scores
// are the raw Cosine or Dot similarity.
func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, excludeIDs []string) ([]VectorMatch, error) {
	const op = "query"
	if err := s.checkDim(op, "query", q); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	req := map[string]any{
		"vector":       q,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       s.filter(s.qualify(namespace), excludeIDs),
	}
	var hits []searchHit
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &hits); err != nil {
		return nil, err
	}

	out := make([]VectorMatch, 0, len(hits))
	for _, h := range hits {
		id, _ := h.Payload[payloadVectorIDKey].(string)
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		meta := make(map[string]any, len(h.Payload))
		for k, v := range h.Payload {
			if k != payloadNamespaceKey && k != payloadVectorIDKey {
				meta[k] = v
			}
		}
		out = append(out, VectorMatch{ID: id, Score: h.Score, Metadata: meta})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *vectorStore) checkDim(op, id string, values []float32) error {
	if len(values) == 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("vector %q has no values", id), nil)
	}
	if len(values) != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(values)), nil)
	}
	return nil
}

// ensureCollection requires the collection to match the configured size and
// distance.
func (s *vectorStore) ensureCollection(ctx context.Context) error {
	const op = "ensure_collection"
	var info collectionInfo
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	var opErrV *OperationError
	if err != nil && errors.As(err, &opErrV) && opErrV.StatusCode == http.StatusNotFound {
		if !s.cfg.CreateCollection {
			return err
		}
		req := map[string]any{"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": s.cfg.Distance}}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil); err != nil {
			return err
		}
		s.log.Info("Qdrant collection created", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
		return nil
	}
	if err != nil {
		return err
	}

	vec := info.Config.Params.Vectors
	if vec.Size != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("collection %q has vector size %d, configured %d", s.cfg.Collection, vec.Size, s.cfg.VectorDim), nil)
	}
	if !strings.EqualFold(vec.Distance, s.cfg.Distance) {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("collection %q uses distance %q, configured %q", s.cfg.Collection, vec.Distance, s.cfg.Distance), nil)
	}
	return nil
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, clipBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := statusError(env.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

// statusError reads the envelope status: "ok", another string, or
// {"error": "..."}.
func statusError(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var word string
	if err := json.Unmarshal(raw, &word); err == nil {
		if strings.EqualFold(word, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", word)
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return "qdrant status=" + status
}

func clipBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	n := maxErrorBodyBytes
	for n > 0 && !utf8.RuneStart(raw[n]) {
		n--
	}
	return string(raw[:n]) + "..."
}

func (s *vectorStore) qualify(namespace string) string {
	if ns := strings.TrimSpace(namespace); ns != "" {
		return s.nsPrefix + ":" + ns
	}
	return s.nsPrefix
}

// pointID is stable per namespace and vector id, so a re-upsert overwrites.
func (s *vectorStore) pointID(ns, vectorID string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(ns+"|"+vectorID)).String()
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *vectorStore) filter(ns string, excludeIDs []string) map[string]any {
	f := map[string]any{
		"must": []any{
			map[string]any{"key": payloadNamespaceKey, "match": map[string]any{"value": ns}},
		},
	}
	var skip []string
	for _, id := range excludeIDs {
		if id = strings.TrimSpace(id); id != "" {
			skip = append(skip, s.pointID(ns, id))
		}
	}
	if len(skip) > 0 {
		f["must_not"] = []any{map[string]any{"has_id": skip}}
	}
	return f
}
