package httptransport

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custodia/internal/consent"
	"custodia/pkg/testutil"
)

type ConsentHandlerSuite struct {
	suite.Suite
	router   chi.Router
	tenantID string
}

func (s *ConsentHandlerSuite) SetupTest() {
	service := consent.NewService(consent.NewInMemoryStore(), testutil.Logger(), nil)
	s.router = chi.NewRouter()
	NewConsentHandler(service, testutil.Logger()).Register(s.router)

	accessor := testutil.NewAccessor("support")
	s.tenantID = accessor.TenantID.String()
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func (s *ConsentHandlerSuite) record(subjectID, consentType string) {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consent", map[string]any{
		"tenant_id":    s.tenantID,
		"subject_type": "customer",
		"subject_id":   subjectID,
		"consent_type": consentType,
		"legal_basis":  "consent",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
}

func (s *ConsentHandlerSuite) TestRecordConsent() {
	s.Run("creates a granted record", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consent", map[string]any{
			"tenant_id":    s.tenantID,
			"subject_type": "customer",
			"subject_id":   "c-1",
			"consent_type": "marketing",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "status", "granted")
		testutil.AssertJSONHasKey(s.T(), rr, "granted_at")
	})

	s.Run("rejects a malformed tenant id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consent", map[string]any{
			"tenant_id":    "not-a-uuid",
			"subject_type": "customer",
			"subject_id":   "c-1",
			"consent_type": "marketing",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("rejects an unknown consent type", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consent", map[string]any{
			"tenant_id":    s.tenantID,
			"subject_type": "customer",
			"subject_id":   "c-1",
			"consent_type": "mind_reading",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
	})

	s.Run("rejects a malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/consent", "{not json")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *ConsentHandlerSuite) TestCheckConsent() {
	s.record("c-2", "analytics")

	s.Run("granted key reports true", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet,
			"/consent/check?tenant_id="+s.tenantID+"&subject_type=customer&subject_id=c-2&consent_type=analytics")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "granted", true)
	})

	s.Run("ungranted key reports false", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet,
			"/consent/check?tenant_id="+s.tenantID+"&subject_type=customer&subject_id=c-2&consent_type=cookies")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "granted", false)
	})
}

func (s *ConsentHandlerSuite) TestWithdrawConsent() {
	s.record("c-3", "cookies")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consent/withdraw", map[string]any{
		"tenant_id":    s.tenantID,
		"subject_type": "customer",
		"subject_id":   "c-3",
		"consent_type": "cookies",
		"reason":       "user opted out",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "withdrawn", true)

	check := testutil.NewRequest(s.T(), http.MethodGet,
		"/consent/check?tenant_id="+s.tenantID+"&subject_type=customer&subject_id=c-3&consent_type=cookies")
	rr = testutil.DoRequest(s.router, check)
	testutil.AssertJSONContains(s.T(), rr, "granted", false)
}

func (s *ConsentHandlerSuite) TestSubjectConsents() {
	s.record("c-4", "marketing")
	s.record("c-4", "marketing") // supersedes the first
	s.record("c-4", "analytics")

	req := testutil.NewRequest(s.T(), http.MethodGet,
		"/consent/subjects/customer/c-4?tenant_id="+s.tenantID)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	body := testutil.UnmarshalResponse[struct {
		Consents []struct {
			Status           string `json:"status"`
			WithdrawalReason string `json:"withdrawal_reason"`
		} `json:"consents"`
	}](s.T(), rr)
	s.Require().Len(body.Consents, 3)

	superseded := 0
	for _, record := range body.Consents {
		if record.WithdrawalReason == "Superseded by new consent" {
			superseded++
		}
	}
	s.Equal(1, superseded)
}
