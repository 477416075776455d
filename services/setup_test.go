package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// recordingMailer запоминает отправленные письма
type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(ctx context.Context, toName, toEmail, subject, text, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, toEmail+": "+subject)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// recordingAlerter запоминает служебные оповещения
type recordingAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *recordingAlerter) Alert(title, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

func (a *recordingAlerter) has(title string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.titles {
		if t == title {
			return true
		}
	}
	return false
}

// stubRegistry реестр соответствия для тестов
type stubRegistry struct {
	submitted []string
	err       error
}

func (r *stubRegistry) Submit(ctx context.Context, report *models.Report) error {
	if r.err != nil {
		return r.err
	}
	r.submitted = append(r.submitted, report.InterventionReference)
	return nil
}

// testEnv набор сервисов поверх одной тестовой базы
type testEnv struct {
	db       *gorm.DB
	log      *logrus.Logger
	hub      *Hub
	mailer   *recordingMailer
	alerter  *recordingAlerter
	registry *stubRegistry
	effects  *SideEffects

	notifications *NotificationService
	quotes        *QuoteService
	billing       *BillingService
	missions      *MissionService
	reports       *ReportService
	requests      *RequestService
	messaging     *MessagingService
	catalog       *CatalogService
	users         *UserService
	auth          *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutils.SetupTestDB(t)
	cfg := testutils.TestConfig(t.TempDir())
	log := testutils.TestLogger()

	env := &testEnv{
		db:       db,
		log:      log,
		hub:      NewHub(),
		mailer:   &recordingMailer{},
		alerter:  &recordingAlerter{},
		registry: &stubRegistry{},
	}
	env.notifications = NewNotificationService(db, env.hub, log)
	env.effects = &SideEffects{
		Notifications: env.notifications,
		Mailer:        env.mailer,
		Alerter:       env.alerter,
		Log:           log,
	}
	env.quotes = NewQuoteService(db, cfg.Business, env.effects, log)
	env.billing = NewBillingService(db, cfg.Business, env.effects, log)
	env.missions = NewMissionService(db, env.billing, env.effects, log)
	env.reports = NewReportService(db, env.registry, env.effects, log)
	env.requests = NewRequestService(db, env.effects, log)
	env.messaging = NewMessagingService(db, env.effects, log)
	env.catalog = NewCatalogService(db, env.effects, log)
	env.users = NewUserService(db, log)
	env.auth = NewAuthService(db, NewTokenService(cfg.JWT), log)
	return env
}

// acceptedQuoteMission создает принятое предложение и миссию по нему
func (env *testEnv) acceptedQuoteMission(t *testing.T, admin, client, tech *models.User, status models.MissionStatus) (*models.Quote, *models.Mission) {
	t.Helper()

	st := testutils.CreateServiceType(t, env.db)
	quote := testutils.CreateQuote(t, env.db, client, tech, models.QuoteAccepted, 250)
	when := time.Now().Add(48 * time.Hour)
	mission, err := env.missions.Create(context.Background(), admin, MissionInput{
		Title:         "Pose alarme",
		ServiceTypeID: st.ID,
		ClientID:      client.ID,
		TechnicianID:  tech.ID,
		QuoteID:       quote.ID,
		ScheduledDate: &when,
		Address:       "1 rue de Paris",
		Status:        status,
	})
	if err != nil {
		t.Fatalf("Failed to create mission: %v", err)
	}
	return quote, mission
}
