package climate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/prism-archive/internal/metrics"
	"github.com/i474232898/prism-archive/internal/raster"
)

// DefaultCumulativeDays is the window length used when a request gives none.
const DefaultCumulativeDays = 5

// Publisher ships a finished derived product somewhere else (object storage, ...).
type Publisher interface {
	Publish(ctx context.Context, p DerivedProduct) error
}

// Options configures a Service.
type Options struct {
	Provider    SourceProvider
	Installer   Installer
	Catalog     Catalog
	StageRoot   string
	ProductRoot string
	ChunkRows   int
	DefaultDays int
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Service orchestrates fetching, installing and aggregating archive assets.
type Service struct {
	provider    SourceProvider
	installer   Installer
	catalog     Catalog
	stageRoot   string
	productRoot string
	chunkRows   int
	defaultDays int
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	days := opts.DefaultDays
	if days <= 0 {
		days = DefaultCumulativeDays
	}
	return &Service{
		provider:    opts.Provider,
		installer:   opts.Installer,
		catalog:     opts.Catalog,
		stageRoot:   opts.StageRoot,
		productRoot: opts.ProductRoot,
		chunkRows:   opts.ChunkRows,
		defaultDays: days,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// DefaultDays returns the window length used when a request gives none.
func (s *Service) DefaultDays() int { return s.defaultDays }

// FetchOutcome tags the result of a Fetch.
type FetchOutcome string

const (
	FetchInstalled FetchOutcome = "installed"
	FetchUpToDate  FetchOutcome = "up_to_date"
)

// FetchResult reports what Fetch chose and did.
type FetchResult struct {
	Outcome   FetchOutcome   `json:"outcome"`
	Selection string         `json:"selection"`
	Entry     string         `json:"entry"`
	Asset     ResolvedAsset  `json:"asset"`
	Replaced  *ResolvedAsset `json:"replaced,omitempty"`
}

func validDate(date time.Time) error {
	if Day(date).Before(ArchiveStart) {
		return fmt.Errorf("%w: %s precedes archive start %s", ErrInvalidArgument, DateToken(date), DateToken(ArchiveStart))
	}
	return nil
}

// Fetch lists the remote candidates for (v, date), selects the best one and
// installs it unless the archive already holds an equal or better revision.
func (s *Service) Fetch(ctx context.Context, v Variable, date time.Time) (FetchResult, error) {
	var res FetchResult
	if _, err := ParseVariable(string(v)); err != nil {
		return res, err
	}
	if err := validDate(date); err != nil {
		return res, err
	}
	date = Day(date)
	log := s.logger.With(zap.String("variable", string(v)), zap.String("date", DateToken(date)))

	entries, err := s.provider.ListRemoteCandidates(ctx, v, date)
	if err != nil {
		s.metrics.IncFetch(string(v), "transfer_error")
		return res, &TransferError{Entry: s.provider.Name() + " listing", Err: err}
	}

	sel, err := SelectBestCandidate(entries, v, date)
	for _, skipErr := range sel.Skipped {
		log.Warn("skipping remote entry", zap.Error(skipErr))
	}
	s.metrics.AddSkipped(len(sel.Skipped))
	if err != nil {
		s.metrics.IncFetch(string(v), "no_candidate")
		return res, err
	}
	res.Selection = sel.Outcome.String()
	res.Entry = sel.Entry
	log = log.With(zap.String("entry", sel.Entry), zap.Stringer("score", ScoreOf(sel.Descriptor)))

	current, ok, err := s.catalog.Lookup(ctx, v, date, sel.Descriptor.Tile)
	if err != nil {
		return res, fmt.Errorf("lookup current asset: %w", err)
	}
	if ok && !Supersedes(sel.Descriptor, current.Descriptor) {
		log.Debug("archive already holds an equal or better revision",
			zap.String("current", current.Descriptor.Filename))
		s.metrics.IncFetch(string(v), string(FetchUpToDate))
		res.Outcome = FetchUpToDate
		res.Asset = current
		return res, nil
	}

	log.Info("downloading", zap.Int("considered", sel.Considered))
	inst, err := Retrieve(ctx, s.provider, s.installer, s.stageRoot, sel)
	if err != nil {
		outcome := "install_error"
		if errors.Is(err, ErrTransfer) {
			outcome = "transfer_error"
		}
		s.metrics.IncFetch(string(v), outcome)
		return res, err
	}

	res.Asset = inst.Asset
	res.Replaced = inst.Replaced
	res.Outcome = FetchUpToDate
	if inst.Installed {
		res.Outcome = FetchInstalled
		log.Info("installed asset", zap.String("location", inst.Asset.Location))
	}
	s.metrics.IncFetch(string(v), string(res.Outcome))
	return res, nil
}

// Lookup returns the current asset for (v, date) on the single tile.
func (s *Service) Lookup(ctx context.Context, v Variable, date time.Time) (ResolvedAsset, bool, error) {
	if _, err := ParseVariable(string(v)); err != nil {
		return ResolvedAsset{}, false, err
	}
	return s.catalog.Lookup(ctx, v, Day(date), TileCONUS)
}

// RequestState is the lifecycle of one aggregation request.
type RequestState string

const (
	StateRequested      RequestState = "REQUESTED"
	StateWindowBuilt    RequestState = "WINDOW_BUILT"
	StateInputsResolved RequestState = "INPUTS_RESOLVED"
	StateComplete       RequestState = "COMPLETE"
	StateFailed         RequestState = "FAILED"
)

// AggregateRequest asks for a windowed product ending at Date.
type AggregateRequest struct {
	Variable  Variable
	Date      time.Time
	Days      int
	Reduction Reduction
	Tile      string
}

// Aggregate builds the window, resolves one raster per day and reduces them
// into a product raster. Nothing is retried: a failed request reports
// StateFailed and the caller may ask again later.
func (s *Service) Aggregate(ctx context.Context, req AggregateRequest) (DerivedProduct, error) {
	if req.Days == 0 {
		req.Days = s.defaultDays
	}
	if req.Reduction == nil {
		req.Reduction = Sum
	}
	if req.Tile == "" {
		req.Tile = TileCONUS
	}
	kind := ProductKind(req.Variable, req.Reduction)
	start := s.now()
	requestID := uuid.NewString()
	log := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("kind", kind),
		zap.String("date", DateToken(req.Date)),
		zap.Int("days", req.Days),
	)
	advance := func(state RequestState) {
		log.Debug("aggregation state", zap.String("state", string(state)))
	}
	fail := func(err error) (DerivedProduct, error) {
		advance(StateFailed)
		s.metrics.ObserveAggregation(kind, "failed", s.now().Sub(start).Seconds())
		log.Warn("aggregation failed", zap.Error(err))
		return DerivedProduct{}, err
	}
	advance(StateRequested)

	if _, err := ParseVariable(string(req.Variable)); err != nil {
		return fail(err)
	}
	if err := validDate(req.Date); err != nil {
		return fail(err)
	}
	w, err := BuildWindow(req.Date, req.Days)
	if err != nil {
		return fail(err)
	}
	log = log.With(zap.String("window_start", DateToken(w.Start())))
	advance(StateWindowBuilt)

	inputs, err := ResolveInputs(ctx, s.catalog, w, req.Variable, req.Tile)
	if err != nil {
		return fail(err)
	}
	advance(StateInputsResolved)

	out := ProductPath(s.productRoot, req.Tile, w.End(), kind, w.Len())
	if err := s.reduce(ctx, inputs, out, req.Reduction); err != nil {
		return fail(err)
	}

	p := DerivedProduct{
		RequestID: requestID,
		Kind:      kind,
		Variable:  req.Variable,
		Tile:      req.Tile,
		Date:      w.End(),
		Days:      w.Len(),
		Reduction: req.Reduction.Name(),
		Path:      out,
		CreatedAt: s.now().UTC(),
	}
	for _, in := range inputs {
		p.Inputs = append(p.Inputs, in.Descriptor)
	}
	if err := WriteManifest(p); err != nil {
		return fail(fmt.Errorf("write manifest: %w", err))
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, p); err != nil {
			return fail(fmt.Errorf("publish %s: %w", filepath.Base(out), err))
		}
	}

	advance(StateComplete)
	s.metrics.ObserveAggregation(kind, "complete", s.now().Sub(start).Seconds())
	log.Info("aggregation complete", zap.String("path", out))
	return p, nil
}

func (s *Service) reduce(ctx context.Context, inputs []WindowInput, out string, red Reduction) (err error) {
	readers := make([]raster.Reader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	for _, in := range inputs {
		r, err := raster.Open(in.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", DateToken(in.Date), err)
		}
		readers = append(readers, r)
	}

	w, err := raster.Create(out, readers[0].Header())
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := Aggregate(ctx, readers, w, red, s.chunkRows); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}

// Product loads the manifest of a previously aggregated product.
func (s *Service) Product(v Variable, date time.Time, red Reduction, days int) (DerivedProduct, error) {
	if days == 0 {
		days = s.defaultDays
	}
	if red == nil {
		red = Sum
	}
	return ReadManifest(ProductPath(s.productRoot, TileCONUS, date, ProductKind(v, red), days))
}

// Stale reports whether any input of p has since been superseded or removed.
// Recomputing is left to the caller.
func (s *Service) Stale(ctx context.Context, p DerivedProduct) (bool, error) {
	for _, in := range p.Inputs {
		current, ok, err := s.catalog.Lookup(ctx, in.Variable, in.Date, in.Tile)
		if err != nil {
			return false, err
		}
		if !ok || ScoreOf(current.Descriptor) != ScoreOf(in) {
			return true, nil
		}
	}
	return false, nil
}

// DailyProduct links the current raster of (v, date) under the products tree
// as <tile>_<date>_prism_<v>.bil, with its header next to it.
func (s *Service) DailyProduct(ctx context.Context, v Variable, date time.Time) (string, error) {
	if _, err := ParseVariable(string(v)); err != nil {
		return "", err
	}
	date = Day(date)
	asset, ok, err := s.catalog.Lookup(ctx, v, date, TileCONUS)
	if err != nil {
		return "", err
	}
	src, found := asset.File(v)
	if !ok || !found {
		return "", fmt.Errorf("%w: %s on %s", ErrNotInstalled, v, DateToken(date))
	}
	dst := DailyProductPath(s.productRoot, TileCONUS, date, v)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", err
	}
	if err := replaceSymlink(src, dst); err != nil {
		return "", err
	}
	if err := replaceSymlink(raster.HeaderPath(src), raster.HeaderPath(dst)); err != nil {
		return "", err
	}
	return dst, nil
}

func replaceSymlink(target, link string) error {
	tmp := link + ".tmp-" + uuid.NewString()
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
