package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/example/carpool-client/internal/models"
)

const (
	opSignUp         = "signup"
	opLogin          = "login"
	opGetCurrentUser = "current_user"
)

var accountExists = regexp.MustCompile(`(?i)exist`)

// SignupRequest holds the signup form. Optional fields are omitted from the
// multipart body when empty.
type SignupRequest struct {
	FirstName         string
	LastName          string
	Email             string
	Password          string
	Phone             string
	CompanyAddress    models.Address
	HomeAddress       models.Address
	Role              models.Role
	WillingToTake     []int
	HasDriversLicense *bool
	Profile           *FileUpload
}

func (r SignupRequest) validate() error {
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" || strings.TrimSpace(r.Email) == "" {
		return errors.New("Please fill in first name, last name and email")
	}
	switch r.Role {
	case models.RoleDriver, models.RolePassenger:
	default:
		return errors.New("role must be driver or passenger")
	}
	return nil
}

func (r SignupRequest) form() url.Values {
	f := url.Values{}
	f.Set("firstName", r.FirstName)
	f.Set("lastName", r.LastName)
	f.Set("email", r.Email)
	f.Set("password", r.Password)
	setIf(f, "phone", r.Phone)
	setIf(f, "officeName", r.CompanyAddress.OfficeName)
	setIf(f, "companyStreet", r.CompanyAddress.Street)
	setIf(f, "companyCity", r.CompanyAddress.City)
	setIf(f, "companyZip", r.CompanyAddress.Zipcode)
	setIf(f, "homeStreet", r.HomeAddress.Street)
	setIf(f, "homeCity", r.HomeAddress.City)
	setIf(f, "homeZip", r.HomeAddress.Zipcode)
	f.Set("role", string(r.Role))
	// seat preferences only mean something for drivers
	if r.Role == models.RoleDriver {
		for _, n := range r.WillingToTake {
			f.Add("willingToTake", strconv.Itoa(n))
		}
	}
	if r.HasDriversLicense != nil {
		f.Set("hasDriversLicense", strconv.FormatBool(*r.HasDriversLicense))
	}
	return f
}

func setIf(f url.Values, key, value string) {
	if value != "" {
		f.Set(key, value)
	}
}

// SignUp creates an account. A 409, or any backend message mentioning that
// the account exists, is reported as KindDuplicateAccount with the fixed
// message "Account already exists".
func (c *Client) SignUp(ctx context.Context, req SignupRequest) (*models.TokenResponse, error) {
	if err := req.validate(); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: opSignUp, Message: err.Error()}
	}
	cl := call{
		op:       opSignUp,
		method:   http.MethodPost,
		path:     "/signup",
		form:     req.form(),
		file:     req.Profile,
		fallback: "Signup failed",
	}
	if cl.file == nil {
		// the endpoint only accepts multipart bodies
		cl.file = &FileUpload{}
	}

	var out models.TokenResponse
	if err := c.do(ctx, cl, &out); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Kind == KindHTTP &&
			(apiErr.Status == http.StatusConflict || accountExists.MatchString(apiErr.Detail)) {
			return nil, &Error{
				Kind:    KindDuplicateAccount,
				Op:      opSignUp,
				Status:  apiErr.Status,
				Message: ErrDuplicateAccount.Message,
				Detail:  apiErr.Detail,
			}
		}
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a bearer token. The email travels in the
// OAuth2 "username" form field. The token is returned, not stored: callers
// hand it to the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var out models.TokenResponse
	err := c.do(ctx, call{
		op:       opLogin,
		method:   http.MethodPost,
		path:     "/login",
		form:     form,
		fallback: "Login failed",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &Error{Kind: KindNetwork, Op: opLogin, Message: "Login failed", Err: errors.New("response carried no access_token")}
	}
	return &out, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	err := c.do(ctx, call{
		op:       opGetCurrentUser,
		method:   http.MethodGet,
		path:     "/me",
		auth:     true,
		fallback: "Failed to load profile",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
