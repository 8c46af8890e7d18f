package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/extraction"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/refdata"
)

// docRepoFake keeps documents in memory with the same run guards as the
// Postgres repository.
type docRepoFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	startedAt map[string]time.Time
	outcomes  []domain.RunOutcome
	getErr    error
	finishErr error
	createErr error
	clock     func() time.Time
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{
		docs:      map[string]*domain.Document{},
		startedAt: map[string]time.Time{},
		clock:     time.Now,
	}
	for _, d := range docs {
		copyDoc := *d
		f.docs[d.ID] = &copyDoc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) BeginRun(_ context.Context, id string, mode domain.ProcessingMode, jobID string) (domain.RunTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.RunTicket{}, domain.WrapError(domain.ErrDocumentNotFound, "begin run", fmt.Errorf("id=%s", id))
	}
	if doc.Status == domain.StatusProcessing {
		return domain.RunTicket{}, domain.WrapError(domain.ErrConflict, "begin run", errors.New("already processing"))
	}
	doc.RunSeq++
	doc.Status = domain.StatusProcessing
	doc.Mode = mode
	doc.JobID = jobID
	doc.Error = nil
	f.startedAt[id] = f.clock()
	return domain.RunTicket{DocumentID: id, RunSeq: doc.RunSeq, Mode: mode, JobID: jobID}, nil
}

func (f *docRepoFake) FinishRun(_ context.Context, outcome domain.RunOutcome) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[outcome.Ticket.DocumentID]
	if !ok || doc.RunSeq != outcome.Ticket.RunSeq || doc.Status != domain.StatusProcessing {
		return domain.WrapError(domain.ErrStaleRun, "finish run", fmt.Errorf("run_seq=%d", outcome.Ticket.RunSeq))
	}
	doc.Status = outcome.Status
	doc.Report = outcome.Report
	doc.Error = outcome.Error
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *docRepoFake) FailStuck(_ context.Context, startedBefore time.Time, detail domain.ErrorDetail) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, doc := range f.docs {
		if doc.Status != domain.StatusProcessing || !f.startedAt[id].Before(startedBefore) {
			continue
		}
		d := detail
		doc.Status = domain.StatusError
		doc.Error = &d
		doc.Report = nil
		doc.RunSeq++
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *docRepoFake) CountByStatus(context.Context) (map[domain.DocumentStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[domain.DocumentStatus]int{}
	for _, doc := range f.docs {
		out[doc.Status]++
	}
	return out, nil
}

func (f *docRepoFake) doc(id string) domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

type storageFake struct {
	mu      sync.Mutex
	sizes   map[string]int64
	saved   map[string]string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{sizes: map[string]int64{}, saved: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = string(raw)
	f.sizes[key] = int64(len(raw))
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return io.NopCloser(strings.NewReader(f.saved[key])), nil
}

func (f *storageFake) Stat(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.sizes[key]
	if !ok {
		return 0, domain.WrapError(domain.ErrDocumentFileMissing, "stat object", fmt.Errorf("key=%s", key))
	}
	return size, nil
}

type queueFake struct {
	mu           sync.Mutex
	jobs         []domain.ExtractionJob
	err          error
	disconnected bool
}

func (f *queueFake) Enqueue(_ context.Context, job domain.ExtractionJob) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) Consume(context.Context, func(context.Context, domain.JobDelivery) error) error {
	return errors.New("not implemented")
}

func (f *queueFake) Connected() bool { return !f.disconnected }

type jobStoreFake struct {
	mu     sync.Mutex
	states map[string]domain.JobState
	getErr error
}

func newJobStoreFake() *jobStoreFake {
	return &jobStoreFake{states: map[string]domain.JobState{}}
}

func (f *jobStoreFake) Put(_ context.Context, state domain.JobState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.JobID] = state
	return nil
}

func (f *jobStoreFake) Get(_ context.Context, jobID string) (*domain.JobState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[jobID]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job state", fmt.Errorf("job_id=%s", jobID))
	}
	return &state, nil
}

type recognizerFake struct {
	mu      sync.Mutex
	text    domain.RecognizedText
	errs    []error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (f *recognizerFake) Recognize(context.Context, *domain.Document) (domain.RecognizedText, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if err != nil {
		return domain.RecognizedText{}, err
	}
	return f.text, nil
}

type templateSourceFake struct {
	tpl *domain.Template
	err error
}

func (f *templateSourceFake) ActiveTemplate(context.Context) (*domain.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tpl, nil
}

type observerFake struct {
	mu       sync.Mutex
	finished []domain.DocumentStatus
	reports  int
	retries  int
	stale    int
}

func (f *observerFake) RunFinished(_ domain.ProcessingMode, status domain.DocumentStatus, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, status)
}

func (f *observerFake) ReportProduced(*domain.ExtractionReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports++
}

func (f *observerFake) JobRetried() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
}

func (f *observerFake) StaleRunDropped() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale++
}

const declarationText = "ГРУЗОВАЯ ТАМОЖЕННАЯ ДЕКЛАРАЦИЯ\n26010/18.06.2025/0034784\nСтрана: КИТАЙ\n"

func declarationTemplate() *domain.Template {
	return &domain.Template{
		ID:       "tpl-1",
		Name:     "customs",
		Version:  1,
		IsActive: true,
		Fields: []domain.FieldDefinition{
			{
				Name:     "declaration_number",
				Label:    "Номер",
				Position: 0,
				Rule:     domain.RuleSpec{Type: domain.RuleRegex, Pattern: `(\d{5}/\d{2}\.\d{2}\.\d{4}/\d{7})`},
			},
			{
				Name:     "dispatch_country",
				Label:    "Страна отправления",
				Position: 1,
				Rule:     domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Страна:", ExtractAs: domain.ExtractWord},
			},
		},
	}
}

type dispatchFixture struct {
	repo       *docRepoFake
	storage    *storageFake
	queue      *queueFake
	jobs       *jobStoreFake
	recognizer *recognizerFake
	templates  *templateSourceFake
	observer   *observerFake
	process    *ProcessDocumentUseCase
	dispatch   *DispatchUseCase
	now        time.Time
}

func newDispatchFixture(docs ...*domain.Document) *dispatchFixture {
	f := &dispatchFixture{
		repo:       newDocRepoFake(docs...),
		storage:    newStorageFake(),
		queue:      &queueFake{},
		jobs:       newJobStoreFake(),
		recognizer: &recognizerFake{text: domain.RecognizedText{Text: declarationText}},
		templates:  &templateSourceFake{tpl: declarationTemplate()},
		observer:   &observerFake{},
		now:        time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
	f.repo.clock = func() time.Time { return f.now }
	orchestrator := extraction.NewOrchestrator(extraction.NewEvaluator(extraction.DefaultConfig()))
	normalizer := refdata.NewNormalizer(refdata.DefaultTables(), nil)
	f.process = NewProcessDocumentUseCase(f.repo, f.recognizer, f.templates, orchestrator, normalizer, f.observer)
	f.process.now = func() time.Time { return f.now }
	f.dispatch = NewDispatchUseCase(f.repo, f.storage, f.queue, f.jobs, f.process, DefaultDispatchConfig())
	f.dispatch.now = func() time.Time { return f.now }
	f.dispatch.newJobID = func() string { return "job-1" }
	return f
}

func uploadedDoc(id string) *domain.Document {
	return &domain.Document{ID: id, Filename: id + ".pdf", StoragePath: id + ".pdf", Status: domain.StatusUploaded}
}
