// Package request implements the job lifecycle state machine: build a job
// specification, submit it, track its status through completion by polling
// or push subscription, and retrieve the result.
//
// A JobRequest moves unsubmitted → submitted on Submit; the remote service
// then drives it through running to complete or failed. The specification
// is frozen once a job ID exists: later mutator calls log a warning and
// change nothing, since they could not affect the remote job.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	mothr "github.com/rs21io/mothr-go"
	"github.com/rs21io/mothr-go/gql"
	"github.com/rs21io/mothr-go/session"
	"github.com/rs21io/mothr-go/transport"
)

// Execer runs one GraphQL operation. *transport.Conn satisfies it.
type Execer interface {
	Do(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error)
}

// Subscriber opens push subscriptions. *transport.Socket satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, query string, vars map[string]any) (<-chan json.RawMessage, error)
}

// s3URI is the required shape for input/output parameter values:
// s3://<bucket>/<key> with a bucket label ending in a letter.
var s3URI = regexp.MustCompile(`^s3://[a-zA-Z0-9.-]+[a-zA-Z]/\S+$`)

// IsS3URI reports whether s matches the s3://bucket/key shape expected of
// input and output parameter values.
func IsS3URI(s string) bool { return s3URI.MatchString(s) }

// DefaultPollInterval is the delay between status checks in Run.
const DefaultPollInterval = 250 * time.Millisecond

// messageBuffer is the capacity of the channel SubscribeMessages returns,
// independent of how the underlying transport sizes its own channels.
const messageBuffer = 64

// JobRequest owns a mutable job specification and tracks the job through
// its lifecycle after submission. Methods are not safe for concurrent use;
// run one JobRequest per goroutine.
type JobRequest struct {
	exec    Execer
	sess    *session.Session
	sock    Subscriber
	dial    func(ctx context.Context) (Subscriber, error)
	logger  *slog.Logger
	cfg     mothr.Config
	applied bool

	// Job specification, frozen once jobID is set.
	service     string
	version     string
	parameters  []mothr.Parameter
	metadata    map[string]string
	broadcast   []string
	inputStream string

	jobID  string
	status mothr.Status
}

// Option configures a JobRequest.
type Option func(*JobRequest)

// WithConfig supplies an already-resolved configuration.
func WithConfig(cfg mothr.Config) Option {
	return func(r *JobRequest) {
		r.cfg = cfg
		r.applied = true
	}
}

// WithVersion pins the service version. Default "latest".
func WithVersion(version string) Option {
	return func(r *JobRequest) { r.version = version }
}

// WithBroadcast adds pub/sub channels the job result is broadcast to.
func WithBroadcast(channels ...string) Option {
	return func(r *JobRequest) { r.broadcast = append(r.broadcast, channels...) }
}

// WithInputStream sets a value passed to the service on stdin.
func WithInputStream(stream string) Option {
	return func(r *JobRequest) { r.inputStream = stream }
}

// WithSession supplies an existing session instead of constructing one.
func WithSession(sess *session.Session) Option {
	return func(r *JobRequest) { r.sess = sess }
}

// WithExecer supplies the query/mutation executor directly.
func WithExecer(exec Execer) Option {
	return func(r *JobRequest) { r.exec = exec }
}

// WithSubscriber supplies the push-subscription transport directly.
func WithSubscriber(sock Subscriber) Option {
	return func(r *JobRequest) { r.sock = sock }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *JobRequest) { r.logger = logger }
}

// New creates a request for the named service. See NewContext.
func New(service string, opts ...Option) (*JobRequest, error) {
	return NewContext(context.Background(), service, opts...)
}

// NewContext creates a request for the named service. Unless a session or
// executor is supplied, the transport and session are built from the
// resolved configuration; when credentials resolve and no token is
// present, this logs in eagerly and may therefore touch the network.
func NewContext(ctx context.Context, service string, opts ...Option) (*JobRequest, error) {
	r := &JobRequest{
		service:  service,
		version:  "latest",
		metadata: make(map[string]string),
		logger:   slog.Default(),
		status:   mothr.StatusUnsubmitted,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.applied {
		r.cfg = mothr.ResolveConfig()
	}

	if r.exec == nil {
		conn := transport.NewConn(r.cfg.Endpoint, transport.WithLogger(r.logger))
		if r.sess == nil {
			sess, err := session.New(ctx, conn, r.cfg, session.WithLogger(r.logger))
			if err != nil {
				return nil, err
			}
			r.sess = sess
		}
		conn.SetHeaderSource(r.sess)
		r.exec = conn
	}

	if r.sock == nil && r.dial == nil {
		r.dial = func(ctx context.Context) (Subscriber, error) {
			wsURL, err := r.cfg.SocketEndpoint()
			if err != nil {
				return nil, err
			}
			sockOpts := []transport.SocketOption{transport.WithSocketLogger(r.logger)}
			if r.sess != nil {
				sockOpts = append(sockOpts, transport.WithSocketHeaderSource(r.sess))
			}
			return transport.Dial(ctx, wsURL, sockOpts...)
		}
	}

	return r, nil
}

// ── Builder methods ───────────────────────────────────

// AddParameter appends an ordinary parameter. Parameters reach the service
// in the order they were added. Chainable.
func (r *JobRequest) AddParameter(value string, opts ...ParameterOption) *JobRequest {
	return r.add(mothr.ParameterPlain, value, opts...)
}

// AddInput appends an input parameter. The value should be an S3 URI; a
// mismatch logs a warning but the parameter is still appended, since the
// remote side performs the authoritative validation.
func (r *JobRequest) AddInput(value string, opts ...ParameterOption) *JobRequest {
	return r.add(mothr.ParameterInput, value, opts...)
}

// AddOutput appends an output parameter. Validated like AddInput.
func (r *JobRequest) AddOutput(value string, opts ...ParameterOption) *JobRequest {
	return r.add(mothr.ParameterOutput, value, opts...)
}

func (r *JobRequest) add(ptype mothr.ParameterType, value string, opts ...ParameterOption) *JobRequest {
	if r.jobID != "" {
		r.logger.Warn("job already submitted, parameter ignored",
			slog.String("job_id", r.jobID),
			slog.String("value", value),
		)
		return r
	}
	if (ptype == mothr.ParameterInput || ptype == mothr.ParameterOutput) && !IsS3URI(value) {
		r.logger.Warn("parameter value is not an S3 URI",
			slog.String("type", string(ptype)),
			slog.String("value", value),
		)
	}
	p := mothr.Parameter{Type: ptype, Value: value}
	for _, opt := range opts {
		opt(&p)
	}
	r.parameters = append(r.parameters, p)
	return r
}

// ParameterOption configures a single parameter.
type ParameterOption func(*mothr.Parameter)

// WithName sets the parameter name or flag (e.g. "-i", "--input").
func WithName(name string) ParameterOption {
	return func(p *mothr.Parameter) { p.Name = name }
}

// AddOutputMetadata merges metadata attached to job outputs. Later values
// win on key collision. Chainable.
func (r *JobRequest) AddOutputMetadata(metadata map[string]string) *JobRequest {
	if r.jobID != "" {
		r.logger.Warn("job already submitted, output metadata ignored",
			slog.String("job_id", r.jobID),
		)
		return r
	}
	for k, v := range metadata {
		r.metadata[k] = v
	}
	return r
}

// ── Lifecycle operations ──────────────────────────────

// Submit sends the job request and records the assigned job ID and initial
// status. Submitting an already-submitted request logs a warning and
// returns the existing job ID.
func (r *JobRequest) Submit(ctx context.Context) (string, error) {
	if r.jobID != "" {
		r.logger.Warn("job already submitted", slog.String("job_id", r.jobID))
		return r.jobID, nil
	}

	input := map[string]any{
		"service": r.service,
		"version": r.version,
	}
	if len(r.parameters) > 0 {
		input["parameters"] = r.parameters
	}
	// The wire format wants metadata as a pair sequence, not a mapping;
	// the conversion happens here and not before.
	if len(r.metadata) > 0 {
		pairs := make([]mothr.MetadataEntry, 0, len(r.metadata))
		for k, v := range r.metadata {
			pairs = append(pairs, mothr.MetadataEntry{Key: k, Value: v})
		}
		input["outputMetadata"] = pairs
	}
	if len(r.broadcast) > 0 {
		input["broadcast"] = r.broadcast
	}
	if r.inputStream != "" {
		input["inputStream"] = r.inputStream
	}

	op := gql.SubmitJob(input)
	data, err := r.do(ctx, op)
	if err != nil {
		return "", fmt.Errorf("%w: %v", mothr.ErrSubmit, err)
	}

	var resp struct {
		SubmitJob *struct {
			Job *struct {
				JobID  string       `json:"jobId"`
				Status mothr.Status `json:"status"`
			} `json:"job"`
		} `json:"submitJob"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", mothr.ErrSubmit, err)
	}
	if resp.SubmitJob == nil || resp.SubmitJob.Job == nil || resp.SubmitJob.Job.JobID == "" {
		return "", fmt.Errorf("%w: response carried no job", mothr.ErrSubmit)
	}

	r.jobID = resp.SubmitJob.Job.JobID
	r.status = resp.SubmitJob.Job.Status
	r.logger.Info("job submitted",
		slog.String("job_id", r.jobID),
		slog.String("service", r.service),
	)
	return r.jobID, nil
}

// Query fetches the requested fields of the job record. Field paths may be
// dotted ("parameters.name") and are checked against the schema before the
// network call.
func (r *JobRequest) Query(ctx context.Context, fields []string) (json.RawMessage, error) {
	if r.jobID == "" {
		return nil, mothr.ErrNotSubmitted
	}
	op, err := gql.Job(r.jobID, fields)
	if err != nil {
		return nil, err
	}
	data, err := r.do(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("query job %s: %w", r.jobID, err)
	}
	var resp struct {
		Job json.RawMessage `json:"job"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("query job %s: decode response: %w", r.jobID, err)
	}
	return resp.Job, nil
}

// CheckStatus returns the current status as reported by the service. The
// locally stored status is not updated; callers keep the observed value.
func (r *JobRequest) CheckStatus(ctx context.Context) (mothr.Status, error) {
	raw, err := r.Query(ctx, []string{"status"})
	if err != nil {
		return "", err
	}
	var job struct {
		Status mothr.Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	return job.Status, nil
}

// Result fetches the full job record.
func (r *JobRequest) Result(ctx context.Context) (*mothr.JobResult, error) {
	raw, err := r.Query(ctx, gql.ResultFields)
	if err != nil {
		return nil, err
	}
	var result mothr.JobResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	interval     time.Duration
	returnFailed bool
}

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) RunOption {
	return func(c *runConfig) { c.interval = d }
}

// ReturnFailed makes Run return a failed job's record instead of a
// *mothr.JobError.
func ReturnFailed() RunOption {
	return func(c *runConfig) { c.returnFailed = true }
}

// Run submits the job and polls at a fixed interval until the status
// leaves {submitted, running}, then fetches the final record. A final
// status other than complete becomes a *mothr.JobError unless
// ReturnFailed was given. Polling is unbounded; bound it through ctx.
func (r *JobRequest) Run(ctx context.Context, opts ...RunOption) (*mothr.JobResult, error) {
	cfg := runConfig{interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	jobID, err := r.Submit(ctx)
	if err != nil {
		return nil, err
	}

	status, err := r.CheckStatus(ctx)
	if err != nil {
		return nil, err
	}
	for status == mothr.StatusSubmitted || status == mothr.StatusRunning {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.interval):
		}
		if status, err = r.CheckStatus(ctx); err != nil {
			return nil, err
		}
	}
	r.status = status

	result, err := r.Result(ctx)
	if err != nil {
		return nil, err
	}
	if result.Status == mothr.StatusComplete || cfg.returnFailed {
		return result, nil
	}
	return nil, &mothr.JobError{JobID: jobID, Status: result.Status, Message: result.Error}
}

// SubscribeCompletion blocks until the server pushes the job's completion
// event and returns the terminal record. This is an alternative to Run's
// polling, not a layer on top of it.
func (r *JobRequest) SubscribeCompletion(ctx context.Context) (*mothr.JobResult, error) {
	if r.jobID == "" {
		return nil, mothr.ErrNotSubmitted
	}
	sock, err := r.subscriber(ctx)
	if err != nil {
		return nil, err
	}

	op := gql.JobComplete(r.jobID)
	ch, err := sock.Subscribe(ctx, op.Query, op.Variables)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("completion subscription for job %s ended without an event", r.jobID)
		}
		var resp struct {
			Job mothr.JobResult `json:"subscribeJobComplete"`
		}
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("decode completion event: %w", err)
		}
		r.status = resp.Job.Status
		return &resp.Job, nil
	}
}

// SubscribeMessages returns a channel of intermediate messages published
// by the job. The channel closes when the subscription ends or ctx is
// cancelled; it never restarts.
func (r *JobRequest) SubscribeMessages(ctx context.Context) (<-chan json.RawMessage, error) {
	if r.jobID == "" {
		return nil, mothr.ErrNotSubmitted
	}
	sock, err := r.subscriber(ctx)
	if err != nil {
		return nil, err
	}

	op := gql.JobMessages(r.jobID)
	ch, err := sock.Subscribe(ctx, op.Query, op.Variables)
	if err != nil {
		return nil, err
	}

	out := make(chan json.RawMessage, messageBuffer)
	go func() {
		defer close(out)
		for payload := range ch {
			var resp struct {
				Message json.RawMessage `json:"subscribeJobMessages"`
			}
			if err := json.Unmarshal(payload, &resp); err != nil {
				r.logger.Warn("dropping undecodable job message",
					slog.String("job_id", r.jobID),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case out <- resp.Message:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ── Accessors ─────────────────────────────────────────

// JobID returns the server-assigned job ID, or "" before submission.
func (r *JobRequest) JobID() string { return r.jobID }

// Status returns the locally tracked status.
func (r *JobRequest) Status() mothr.Status { return r.status }

// Service returns the target service name.
func (r *JobRequest) Service() string { return r.service }

// Parameters returns a copy of the parameter sequence in append order.
func (r *JobRequest) Parameters() []mothr.Parameter {
	out := make([]mothr.Parameter, len(r.parameters))
	copy(out, r.parameters)
	return out
}

// OutputMetadata returns a copy of the accumulated output metadata.
func (r *JobRequest) OutputMetadata() map[string]string {
	out := make(map[string]string, len(r.metadata))
	for k, v := range r.metadata {
		out[k] = v
	}
	return out
}

// ── Internals ─────────────────────────────────────────

// do executes one operation. If the server reports an expired or invalid
// token and a session is attached, the token is refreshed and the call
// replayed exactly once.
func (r *JobRequest) do(ctx context.Context, op gql.Operation) (json.RawMessage, error) {
	data, err := r.exec.Do(ctx, op.Query, op.Variables)
	if err == nil || r.sess == nil || !transport.TokenExpired(err) {
		return data, err
	}
	if _, refreshErr := r.sess.RefreshAccessToken(ctx); refreshErr != nil {
		return data, err
	}
	r.logger.Debug("access token refreshed, replaying call")
	return r.exec.Do(ctx, op.Query, op.Variables)
}

// subscriber returns the push-subscription transport, dialing it on first
// use.
func (r *JobRequest) subscriber(ctx context.Context) (Subscriber, error) {
	if r.sock != nil {
		return r.sock, nil
	}
	sock, err := r.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial subscription socket: %w", err)
	}
	r.sock = sock
	return sock, nil
}
