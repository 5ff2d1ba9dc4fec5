package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/errors"
	"brokerbridge/internal/models"
	"brokerbridge/internal/symbols"
)

const (
	etradeAPIBase         = "https://api.etrade.com"
	etradeRequestTokenURL = etradeAPIBase + "/oauth/request_token"
	etradeAccessTokenURL  = etradeAPIBase + "/oauth/access_token"
	etradeAuthorizeURL    = "https://us.etrade.com/e/t/etws/authorize"
)

// EtradeAdapter talks to the E*TRADE REST API over three-legged OAuth 1.0a.
// The adapter itself holds no per-connection state; tokens live in the
// session value returned by Connect.
type EtradeAdapter struct {
	baseURL string
	client  *http.Client
}

func NewEtradeAdapter() *EtradeAdapter {
	return &EtradeAdapter{
		baseURL: etradeAPIBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type etradeSession struct {
	creds oauth1Credentials
}

func (s etradeSession) Provider() models.BrokerProvider { return models.ProviderEtrade }

func (a *EtradeAdapter) Provider() models.BrokerProvider { return models.ProviderEtrade }

// Connect builds a session from previously obtained access tokens. Obtaining
// those tokens is the job of RequestToken / AuthorizeURL / AccessToken.
func (a *EtradeAdapter) Connect(ctx context.Context, input ConnectInput) (Session, error) {
	if input.ConsumerKey == "" || input.ConsumerSecret == "" {
		return nil, errors.WithMessage(errors.ErrAuthFailed, "missing consumer key or secret")
	}
	if input.AccessToken == "" || input.AccessSecret == "" {
		return nil, errors.WithMessage(errors.ErrAuthFailed, "missing access token; complete the authorization flow first")
	}
	return etradeSession{creds: oauth1Credentials{
		ConsumerKey:    input.ConsumerKey,
		ConsumerSecret: input.ConsumerSecret,
		Token:          input.AccessToken,
		TokenSecret:    input.AccessSecret,
	}}, nil
}

// RequestToken performs the first leg of the OAuth flow and returns the
// temporary token pair.
func (a *EtradeAdapter) RequestToken(ctx context.Context, consumerKey, consumerSecret string) (token, secret string, err error) {
	creds := oauth1Credentials{ConsumerKey: consumerKey, ConsumerSecret: consumerSecret, TokenSecret: ""}
	body, err := a.signedForm(ctx, creds, etradeRequestTokenURL, url.Values{"oauth_callback": {"oob"}})
	if err != nil {
		return "", "", err
	}
	vals, err := url.ParseQuery(body)
	if err != nil {
		return "", "", errors.WithMessage(errors.ErrAuthFailed, "malformed request token response")
	}
	return vals.Get("oauth_token"), vals.Get("oauth_token_secret"), nil
}

// AuthorizeURL is where the user grants access; the verification code shown
// afterwards feeds AccessToken.
func (a *EtradeAdapter) AuthorizeURL(consumerKey, requestToken string) string {
	return fmt.Sprintf("%s?key=%s&token=%s", etradeAuthorizeURL,
		url.QueryEscape(consumerKey), url.QueryEscape(requestToken))
}

// AccessToken exchanges the verified request token for long-lived access
// tokens.
func (a *EtradeAdapter) AccessToken(ctx context.Context, consumerKey, consumerSecret, requestToken, requestSecret, verifier string) (token, secret string, err error) {
	creds := oauth1Credentials{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Token:          requestToken,
		TokenSecret:    requestSecret,
	}
	body, err := a.signedForm(ctx, creds, etradeAccessTokenURL, url.Values{"oauth_verifier": {verifier}})
	if err != nil {
		return "", "", err
	}
	vals, err := url.ParseQuery(body)
	if err != nil {
		return "", "", errors.WithMessage(errors.ErrAuthFailed, "malformed access token response")
	}
	return vals.Get("oauth_token"), vals.Get("oauth_token_secret"), nil
}

type etradeAccountList struct {
	AccountListResponse struct {
		Accounts struct {
			Account []etradeAccount `json:"Account"`
		} `json:"Accounts"`
	} `json:"AccountListResponse"`
}

type etradeAccount struct {
	AccountIDKey string `json:"accountIdKey"`
	AccountID    string `json:"accountId"`
	AccountName  string `json:"accountName"`
	AccountDesc  string `json:"accountDesc"`
	AccountType  string `json:"accountType"`
	AccountMode  string `json:"accountMode"`
}

func (a *EtradeAdapter) ListAccounts(ctx context.Context, session Session) ([]AccountInfo, error) {
	sess, err := a.session(session)
	if err != nil {
		return nil, err
	}
	var resp etradeAccountList
	if err := a.signedJSON(ctx, sess.creds, a.baseURL+"/v1/accounts/list", &resp); err != nil {
		return nil, err
	}
	accounts := make([]AccountInfo, 0, len(resp.AccountListResponse.Accounts.Account))
	for _, acct := range resp.AccountListResponse.Accounts.Account {
		name := acct.AccountName
		if name == "" {
			name = acct.AccountDesc
		}
		accounts = append(accounts, AccountInfo{
			ExternalID:   acct.AccountIDKey,
			Nickname:     name,
			MaskedNumber: maskAccountID(acct.AccountID),
			AccountType:  strings.ToLower(acct.AccountType),
		})
	}
	return accounts, nil
}

type etradePortfolio struct {
	PortfolioResponse struct {
		AccountPortfolio []struct {
			Position []etradePosition `json:"Position"`
		} `json:"AccountPortfolio"`
	} `json:"PortfolioResponse"`
}

type etradePosition struct {
	SymbolDescription string          `json:"symbolDescription"`
	Quantity          decimal.Decimal `json:"quantity"`
	PricePaid         decimal.Decimal `json:"pricePaid"`
	TotalCost         decimal.Decimal `json:"totalCost"`
	MarketValue       decimal.Decimal `json:"marketValue"`
	TotalGain         decimal.Decimal `json:"totalGain"`
	Product           struct {
		Symbol       string          `json:"symbol"`
		SecurityType string          `json:"securityType"`
		CallPut      string          `json:"callPut"`
		ExpiryYear   int             `json:"expiryYear"`
		ExpiryMonth  int             `json:"expiryMonth"`
		ExpiryDay    int             `json:"expiryDay"`
		StrikePrice  decimal.Decimal `json:"strikePrice"`
	} `json:"Product"`
	Quick struct {
		LastTrade decimal.Decimal `json:"lastTrade"`
	} `json:"Quick"`
}

func (a *EtradeAdapter) FetchPositions(ctx context.Context, session Session, accountExternalID string) (*RawPositionPayload, error) {
	sess, err := a.session(session)
	if err != nil {
		return nil, err
	}
	var resp etradePortfolio
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/portfolio", a.baseURL, url.PathEscape(accountExternalID))
	if err := a.signedJSON(ctx, sess.creds, endpoint, &resp); err != nil {
		return nil, err
	}

	payload := &RawPositionPayload{
		Cash:     decimal.Zero,
		Metadata: map[string]string{"source": "etrade"},
	}
	for _, portfolio := range resp.PortfolioResponse.AccountPortfolio {
		for _, pos := range portfolio.Position {
			raw := RawPosition{
				Symbol:         pos.Product.Symbol,
				Quantity:       pos.Quantity,
				AveragePrice:   optionalDecimal(pos.PricePaid),
				CostBasis:      optionalDecimal(pos.TotalCost),
				LastPrice:      optionalDecimal(pos.Quick.LastTrade),
				MarketValue:    optionalDecimal(pos.MarketValue),
				UnrealizedPL:   optionalDecimal(pos.TotalGain),
				AssetClassHint: string(etradeAssetClass(pos.Product.SecurityType)),
				CurrencyHint:   "USD",
				Name:           pos.SymbolDescription,
				Metadata:       map[string]string{"security_type": pos.Product.SecurityType},
			}
			// Options come back structured, not as an OCC string. Rebuild
			// the canonical symbol so downstream parsing is uniform.
			if strings.EqualFold(pos.Product.SecurityType, "OPTN") {
				exp := time.Date(pos.Product.ExpiryYear, time.Month(pos.Product.ExpiryMonth),
					pos.Product.ExpiryDay, 0, 0, 0, 0, time.UTC)
				right := models.OptionRightCall
				if strings.EqualFold(pos.Product.CallPut, "PUT") {
					right = models.OptionRightPut
				}
				raw.Symbol = symbols.BuildOCC(symbols.OCCFields{
					Underlying: pos.Product.Symbol,
					Expiration: exp,
					Right:      right,
					Strike:     pos.Product.StrikePrice,
				})
			}
			payload.Positions = append(payload.Positions, raw)
		}
	}
	return payload, nil
}

type etradeBalance struct {
	BalanceResponse struct {
		AccountID string `json:"accountId"`
		Computed  struct {
			CashBalance       decimal.Decimal `json:"cashBalance"`
			SettledCashForInv decimal.Decimal `json:"settledCashForInvestment"`
		} `json:"Computed"`
	} `json:"BalanceResponse"`
}

func (a *EtradeAdapter) FetchCash(ctx context.Context, session Session, accountExternalID string) (*CashBalance, error) {
	sess, err := a.session(session)
	if err != nil {
		return nil, err
	}
	var resp etradeBalance
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/balance?instType=BROKERAGE&realTimeNAV=true",
		a.baseURL, url.PathEscape(accountExternalID))
	if err := a.signedJSON(ctx, sess.creds, endpoint, &resp); err != nil {
		return nil, err
	}
	return &CashBalance{
		Total:    resp.BalanceResponse.Computed.CashBalance,
		Currency: "USD",
		Breakdown: []CashEntry{
			{Label: "cash", Amount: resp.BalanceResponse.Computed.CashBalance},
			{Label: "settled_cash", Amount: resp.BalanceResponse.Computed.SettledCashForInv},
		},
	}, nil
}

func (a *EtradeAdapter) TestConnection(ctx context.Context, session Session) bool {
	_, err := a.ListAccounts(ctx, session)
	return err == nil
}

func (a *EtradeAdapter) session(s Session) (etradeSession, error) {
	sess, ok := s.(etradeSession)
	if !ok {
		return etradeSession{}, errors.WithMessage(errors.ErrAuthFailed, "session does not belong to this provider")
	}
	return sess, nil
}

// signedJSON issues a signed GET and decodes the JSON body.
func (a *EtradeAdapter) signedJSON(ctx context.Context, creds oauth1Credentials, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(errors.ErrInternalServer, err)
	}
	header, err := creds.authorizationHeader(http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(errors.ErrInternalServer, err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrSyncFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.WithMessage(errors.ErrAuthFailed, "broker rejected the access token")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.WithMessage(errors.ErrSyncFailed, fmt.Sprintf("broker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrSyncFailed, err)
	}
	return nil
}

// signedForm issues a signed POST expecting a form-encoded body, as the
// token endpoints return.
func (a *EtradeAdapter) signedForm(ctx context.Context, creds oauth1Credentials, endpoint string, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", errors.Wrap(errors.ErrInternalServer, err)
	}
	header, err := creds.authorizationHeader(http.MethodPost, endpoint, params)
	if err != nil {
		return "", errors.Wrap(errors.ErrInternalServer, err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", errors.Wrap(errors.ErrAuthFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.WithMessage(errors.ErrAuthFailed, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}
	return string(body), nil
}

func etradeAssetClass(securityType string) models.AssetClass {
	switch strings.ToUpper(securityType) {
	case "OPTN":
		return models.AssetClassOption
	case "EQ":
		return models.AssetClassEquity
	case "MF", "MMF":
		return models.AssetClassFund
	case "BOND":
		return models.AssetClassBond
	default:
		return ""
	}
}

func maskAccountID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return "****" + id[len(id)-4:]
}

func optionalDecimal(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	v := d
	return &v
}
