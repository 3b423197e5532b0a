package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"travel-backoffice/errors"
	"travel-backoffice/models"
)

// fakeStore mirrors the repository's conditional updates in memory.
type fakeStore struct {
	mu       sync.Mutex
	bookings map[int64]*models.Booking
	nextID   int64

	markPaidErr error
	findErr     error
	created     int
}

func newFakeStore(bookings ...models.Booking) *fakeStore {
	s := &fakeStore{bookings: map[int64]*models.Booking{}, nextID: 1000}
	for i := range bookings {
		b := bookings[i]
		if b.Status == "" {
			b.Status = models.BookingPending
		}
		if b.PaymentStatus == "" {
			b.PaymentStatus = models.PaymentPending
		}
		s.bookings[b.ID] = &b
	}
	return s
}

func (s *fakeStore) get(t *testing.T, id int64) models.Booking {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	require.True(t, ok, "booking %d missing", id)
	return *b
}

// assertPaidImpliesConfirmed checks the Paid => Confirmed rule over every stored booking.
func (s *fakeStore) assertPaidImpliesConfirmed(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bookings {
		if b.PaymentStatus == models.PaymentPaid {
			require.Equal(t, models.BookingConfirmed, b.Status, "booking %d is paid but not confirmed", id)
		}
	}
}

func (s *fakeStore) Create(_ context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.created++
	now := time.Now().UTC()
	b.ID = s.nextID
	b.Version = 1
	b.BookingDate, b.CreatedAt, b.UpdatedAt = now, now, now
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("booking %d not found", id))
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) sorted() []models.Booking {
	out := make([]models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.sorted() {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && b.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) CreatedBetween(_ context.Context, from, to time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.sorted() {
		if !b.CreatedAt.Before(from) && !b.CreatedAt.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) FindByPaymentReference(_ context.Context, ref string) ([]models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.sorted() {
		if b.PaymentLinkID == ref || b.ProviderOrderID == ref || strings.Contains(b.PaymentLinkURL, ref) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) AttachPaymentLink(_ context.Context, id int64, linkID, orderID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return errors.NewNotFoundError("booking not found")
	}
	b.PaymentLinkID, b.ProviderOrderID, b.PaymentLinkURL = linkID, orderID, url
	b.Version++
	return nil
}

func (s *fakeStore) SetRecoveredLink(_ context.Context, id int64, linkID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.PaymentLinkID != "" {
		return false, nil
	}
	b.PaymentLinkID = linkID
	if orderID != "" {
		b.ProviderOrderID = orderID
	}
	b.Version++
	return true, nil
}

func (s *fakeStore) MarkPaid(_ context.Context, id int64, paymentID string) (bool, error) {
	if s.markPaidErr != nil {
		return false, s.markPaidErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.PaymentStatus == models.PaymentPaid {
		return false, nil
	}
	b.Status = models.BookingConfirmed
	b.PaymentStatus = models.PaymentPaid
	if paymentID != "" {
		b.ProviderPaymentID = paymentID
	}
	b.Version++
	return true, nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.PaymentStatus != models.PaymentPending {
		return false, nil
	}
	b.PaymentStatus = models.PaymentFailed
	b.Version++
	return true, nil
}

// fakeProvider serves payment links from memory. ListPaymentLinks ignores the window so the
// caller's own filtering is what the tests observe.
type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	links      map[string]models.PaymentLink
	listed     []models.PaymentLink

	createErr error
	fetchErr  error
	listErr   error

	creates  []models.CreatePaymentLinkRequest
	fetches  []string
	lists    int
	listFrom time.Time
	listTo   time.Time
}

func newFakeProvider(links ...models.PaymentLink) *fakeProvider {
	p := &fakeProvider{configured: true, links: map[string]models.PaymentLink{}}
	for _, l := range links {
		p.links[l.ID] = l
	}
	return p
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) CreatePaymentLink(_ context.Context, req models.CreatePaymentLinkRequest) (*models.PaymentLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates = append(p.creates, req)
	if p.createErr != nil {
		return nil, p.createErr
	}
	l := models.PaymentLink{
		ID:       "plink_new",
		OrderID:  "order_new",
		ShortURL: "https://rzp.io/l/new",
		Status:   models.LinkCreated,
		Amount:   req.AmountPaise,
		Currency: req.Currency,
	}
	p.links[l.ID] = l
	return &l, nil
}

func (p *fakeProvider) FetchPaymentLink(_ context.Context, id string) (*models.PaymentLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches = append(p.fetches, id)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	l, ok := p.links[id]
	if !ok {
		return nil, &errors.ProviderError{StatusCode: 404, Description: "The id provided does not exist"}
	}
	return &l, nil
}

func (p *fakeProvider) ListPaymentLinks(_ context.Context, from, to time.Time) ([]models.PaymentLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	p.listFrom, p.listTo = from, to
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]models.PaymentLink(nil), p.listed...), nil
}

func (p *fakeProvider) calls() (creates, fetches, lists int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creates), len(p.fetches), p.lists
}

type published struct {
	topic string
	key   string
	value interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value})
	return nil
}

// bookingEvents returns the published booking events of the given type.
func (p *fakePublisher) bookingEvents(event string) []BookingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []BookingEvent
	for _, m := range p.msgs {
		if ev, ok := m.value.(BookingEvent); ok && ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

type harness struct {
	store     *fakeStore
	provider  *fakeProvider
	publisher *fakePublisher
	mailer    *fakeMailer
	tasks     *Tasks
	confirmer *Confirmer
}

func newHarness(bookings ...models.Booking) *harness {
	h := &harness{
		store:     newFakeStore(bookings...),
		provider:  newFakeProvider(),
		publisher: &fakePublisher{},
		mailer:    &fakeMailer{},
		tasks:     NewTasks(),
	}
	h.confirmer = NewConfirmer(h.store, NewEvents(h.publisher, "bookings"), NewNotifier(h.mailer, "INR"), h.tasks)
	return h
}

func (h *harness) resolver(tieBreak string) *Resolver {
	return NewResolver(h.provider, h.store, h.confirmer, tieBreak)
}
