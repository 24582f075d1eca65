package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"receiptflow/internal/abr"
	"receiptflow/internal/export"
	"receiptflow/internal/extraction"
	"receiptflow/internal/models"
	"receiptflow/internal/repository"
	"receiptflow/internal/storage"

	"github.com/google/uuid"
)

// memDB backs the in-memory stores so stage moves stay exclusive the way
// the SQL transactions keep them.
type memDB struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]models.Document
	digitized map[uuid.UUID]models.Digitized
	review    map[uuid.UUID]models.DigitizedReview
	ready     map[uuid.UUID]models.DigitizedReady
	reported  map[uuid.UUID]models.DigitizedReported
	history   []models.ExportHistory
	reportErr map[uuid.UUID]error
	// readyClaims holds the export batch reserving each ready row.
	readyClaims map[uuid.UUID]readyClaim
}

type readyClaim struct {
	batch string
	at    time.Time
}

func newMemDB() *memDB {
	return &memDB{
		docs:      map[uuid.UUID]models.Document{},
		digitized: map[uuid.UUID]models.Digitized{},
		review:    map[uuid.UUID]models.DigitizedReview{},
		ready:     map[uuid.UUID]models.DigitizedReady{},
		reported:  map[uuid.UUID]models.DigitizedReported{},
		reportErr: map[uuid.UUID]error{},

		readyClaims: map[uuid.UUID]readyClaim{},
	}
}

// stagesOf lists every table holding id.
func (db *memDB) stagesOf(id uuid.UUID) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	if _, ok := db.docs[id]; ok {
		out = append(out, "documents")
	}
	if _, ok := db.digitized[id]; ok {
		out = append(out, "digitized")
	}
	if _, ok := db.review[id]; ok {
		out = append(out, "review")
	}
	if _, ok := db.ready[id]; ok {
		out = append(out, "ready")
	}
	if _, ok := db.reported[id]; ok {
		out = append(out, "reported")
	}
	return out
}

type memDocs struct{ db *memDB }

func (m memDocs) Create(_ context.Context, doc *models.Document) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.docs[doc.ID] = *doc
	return nil
}

func (m memDocs) Get(_ context.Context, companyID, id uuid.UUID) (*models.Document, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.docs[id]
	if !ok || d.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (m memDocs) List(_ context.Context, companyID uuid.UUID, status models.DocumentStatus, limit, offset int) ([]models.Document, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.Document{}
	for _, d := range m.db.docs {
		if d.CompanyID != companyID {
			continue
		}
		if status == "" && d.Status == models.DocumentStatusDeleted {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m memDocs) Claim(_ context.Context, companyID, id uuid.UUID, now, staleBefore time.Time) (*models.Document, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.docs[id]
	if !ok || d.CompanyID != companyID || !d.Claimable(now, now.Sub(staleBefore)) {
		return nil, repository.ErrNotFound
	}
	d.Status = models.DocumentStatusProcessing
	d.ProcessingStartedAt = &now
	m.db.docs[id] = d
	return &d, nil
}

// held reports whether the document is still in the PROCESSING claim
// started at claimedAt. Callers hold db.mu.
func (db *memDB) held(id uuid.UUID, claimedAt time.Time) (models.Document, bool) {
	d, ok := db.docs[id]
	if !ok || d.Status != models.DocumentStatusProcessing || d.ProcessingStartedAt == nil {
		return d, false
	}
	return d, d.ProcessingStartedAt.Equal(claimedAt)
}

func (m memDocs) MarkError(_ context.Context, id uuid.UUID, claimedAt time.Time, message string, now time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.held(id, claimedAt)
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = models.DocumentStatusError
	d.ErrorMessage = &message
	d.ProcessedDate = &now
	d.ProcessingStartedAt = nil
	m.db.docs[id] = d
	return nil
}

func (m memDocs) MarkDeleted(_ context.Context, id uuid.UUID, claimedAt time.Time, raw []byte, now time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.held(id, claimedAt)
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = models.DocumentStatusDeleted
	d.ReceiptData = raw
	d.ProcessedDate = &now
	d.ProcessingStartedAt = nil
	m.db.docs[id] = d
	return nil
}

type memStages struct{ db *memDB }

func (m memStages) PromoteDocument(_ context.Context, rec *models.Digitized, claimedAt time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.held(rec.OriginalDocumentID, claimedAt); !ok {
		return repository.ErrNotFound
	}
	delete(m.db.docs, rec.OriginalDocumentID)
	m.db.digitized[rec.ID] = *rec
	return nil
}

func (m memStages) GetDigitized(_ context.Context, companyID, id uuid.UUID) (*models.Digitized, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.digitized[id]
	if !ok || r.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m memStages) ListDigitized(_ context.Context, companyID uuid.UUID, limit, offset int) ([]models.Digitized, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.Digitized{}
	for _, r := range m.db.digitized {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m memStages) UpdateDigitized(_ context.Context, rec *models.Digitized) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if r, ok := m.db.digitized[rec.ID]; !ok || r.CompanyID != rec.CompanyID {
		return repository.ErrNotFound
	}
	m.db.digitized[rec.ID] = *rec
	return nil
}

func (m memStages) Archive(_ context.Context, companyID, id uuid.UUID, now time.Time) (*models.DigitizedReview, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.digitized[id]
	if !ok || r.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	delete(m.db.digitized, id)
	review := models.DigitizedReview{StageRecord: r.StageRecord, MovedAt: now}
	m.db.review[id] = review
	return &review, nil
}

func (m memStages) PromoteToReady(_ context.Context, companyID, id uuid.UUID, now time.Time, gate func(*models.Digitized) error) (*models.DigitizedReady, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.digitized[id]
	if !ok || r.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	if gate != nil {
		if err := gate(&r); err != nil {
			return nil, err
		}
	}
	delete(m.db.digitized, id)
	ready := models.DigitizedReady{StageRecord: r.StageRecord, ReadyAt: now}
	m.db.ready[id] = ready
	return &ready, nil
}

func (m memStages) ClaimReady(_ context.Context, companyID, id uuid.UUID, batch string, now, staleBefore time.Time) (*models.DigitizedReady, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.ready[id]
	if !ok || r.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	if c, held := m.db.readyClaims[id]; held && !c.at.Before(staleBefore) {
		return nil, repository.ErrNotFound
	}
	m.db.readyClaims[id] = readyClaim{batch: batch, at: now}
	return &r, nil
}

func (m memStages) ReleaseReady(_ context.Context, companyID, id uuid.UUID, batch string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if c, held := m.db.readyClaims[id]; held && c.batch == batch && m.db.ready[id].CompanyID == companyID {
		delete(m.db.readyClaims, id)
	}
	return nil
}

func (m memStages) ListReady(_ context.Context, companyID uuid.UUID, from, to *time.Time) ([]models.DigitizedReady, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.DigitizedReady{}
	for _, r := range m.db.ready {
		if r.CompanyID != companyID {
			continue
		}
		if from != nil && (r.PurchaseDate == nil || r.PurchaseDate.Before(*from)) {
			continue
		}
		if to != nil && (r.PurchaseDate == nil || r.PurchaseDate.After(*to)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m memStages) Report(_ context.Context, companyID, id uuid.UUID, batch string, now time.Time) (*models.DigitizedReported, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.reportErr[id]; err != nil {
		return nil, err
	}
	r, ok := m.db.ready[id]
	if !ok || r.CompanyID != companyID || m.db.readyClaims[id].batch != batch {
		return nil, repository.ErrNotFound
	}
	delete(m.db.ready, id)
	delete(m.db.readyClaims, id)
	rep := models.DigitizedReported{
		StageRecord:    r.StageRecord,
		ExportedAt:     now,
		ExportFileName: batch,
		ExportStatus:   models.ExportStatusSuccess,
	}
	m.db.reported[id] = rep
	return &rep, nil
}

func (m memStages) ListReview(_ context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReview, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.DigitizedReview{}
	for _, r := range m.db.review {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m memStages) ListReported(_ context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReported, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.DigitizedReported{}
	for _, r := range m.db.reported {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memHistory struct{ db *memDB }

func (m memHistory) Create(_ context.Context, h *models.ExportHistory) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.history = append(m.db.history, *h)
	return nil
}

func (m memHistory) List(_ context.Context, companyID uuid.UUID, limit, offset int) ([]models.ExportHistory, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.ExportHistory{}
	for _, h := range m.db.history {
		if h.CompanyID == companyID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memFiles struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
}

func newMemFiles() *memFiles {
	return &memFiles{data: map[string][]byte{}}
}

func (f *memFiles) Save(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[key] = append([]byte(nil), data...)
	return nil
}

func (f *memFiles) Read(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (f *memFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type fakeExtractor struct {
	calls  atomic.Int32
	result *extraction.Result
	err    error
	// during runs while the extraction is in flight.
	during func()
}

func (f *fakeExtractor) Extract(context.Context, []byte, string) (*extraction.Result, error) {
	f.calls.Add(1)
	if f.during != nil {
		f.during()
	}
	return f.result, f.err
}

type memVendors struct {
	mu      sync.Mutex
	vendors map[string]models.Vendor
	upserts int
}

func newMemVendors(vs ...models.Vendor) *memVendors {
	m := &memVendors{vendors: map[string]models.Vendor{}}
	for _, v := range vs {
		m.vendors[v.ABN] = v
	}
	return m
}

func (m *memVendors) Get(_ context.Context, abn string) (*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[abn]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (m *memVendors) Upsert(_ context.Context, v *models.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendors[v.ABN] = *v
	m.upserts++
	return nil
}

func (m *memVendors) ListStale(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for abn, v := range m.vendors {
		if v.RequestUpdateDate.Before(before) {
			out = append(out, abn)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRegistry struct {
	calls   atomic.Int32
	vendors map[string]models.Vendor
	err     error
}

func (r *fakeRegistry) Lookup(_ context.Context, abn string) (*models.Vendor, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	v, ok := r.vendors[abn]
	if !ok {
		return nil, abr.ErrNotFound
	}
	return &v, nil
}

// stubExporter rejects chosen records and can fail on close.
type stubExporter struct {
	reject   map[uuid.UUID]error
	closeErr error
	added    atomic.Int32
}

func (e *stubExporter) Begin(context.Context, export.BatchInfo) (export.Batch, error) {
	return &stubBatch{e: e}, nil
}

type stubBatch struct{ e *stubExporter }

func (b *stubBatch) Add(_ context.Context, rec *models.DigitizedReady) error {
	if err := b.e.reject[rec.ID]; err != nil {
		return err
	}
	b.e.added.Add(1)
	return nil
}

func (b *stubBatch) Close(context.Context) (*export.Artifact, error) {
	return nil, b.e.closeErr
}
