package clerk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
)

// DefaultPageLimit — потолок размера одной выборки у Clerk API
const DefaultPageLimit = 10

// Client — клиент внешнего провайдера идентичности (Clerk).
// Реализует identity.Source: наборы ID больше потолка страницы
// разбиваются на отдельные запросы внутри клиента.
type Client struct {
	baseUrl    string
	token      string
	pageLimit  int
	httpClient *http.Client
}

func NewClient(baseUrl, token string, pageLimit int) *Client {
	if baseUrl == "" {
		baseUrl = "https://api.clerk.com/v1"
	}
	if pageLimit <= 0 || pageLimit > DefaultPageLimit {
		pageLimit = DefaultPageLimit
	}
	return &Client{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		token:      token,
		pageLimit:  pageLimit,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchMany получает записи пользователей по списку ID, разбивая его на
// страницы не больше потолка провайдера. Некорректные записи (без ID)
// пропускаются; неизвестные ID просто отсутствуют в ответе провайдера
func (c *Client) FetchMany(ctx context.Context, ids []string) ([]models.UserIdentity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var users []models.UserIdentity
	for start := 0; start < len(ids); start += c.pageLimit {
		end := start + c.pageLimit
		if end > len(ids) {
			end = len(ids)
		}

		page, err := c.getUserList(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		users = append(users, page...)
	}

	return users, nil
}

// getUserList выполняет один запрос к Clerk в пределах потолка страницы
func (c *Client) getUserList(ctx context.Context, ids []string) ([]models.UserIdentity, error) {
	params := url.Values{}
	for _, id := range ids {
		params.Add("user_id", id)
	}
	params.Set("limit", strconv.Itoa(c.pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+"/users?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read error body: %w", err)
		}

		var clerkErr clerkError
		if err := json.Unmarshal(errorBody, &clerkErr); err == nil && len(clerkErr.Errors) > 0 {
			return nil, fmt.Errorf("clerk error: %s", clerkErr.Errors[0].Message)
		}
		return nil, fmt.Errorf("clerk API error status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var clerkUsers []clerkUser
	if err := json.Unmarshal(body, &clerkUsers); err != nil {
		return nil, err
	}

	users := make([]models.UserIdentity, 0, len(clerkUsers))
	for _, cu := range clerkUsers {
		if cu.ID == "" {
			continue
		}
		users = append(users, filterUserForClient(cu))
	}

	return users, nil
}

// filterUserForClient оставляет от записи Clerk только поля,
// нужные клиентскому представлению
func filterUserForClient(cu clerkUser) models.UserIdentity {
	user := models.UserIdentity{
		ID:   cu.ID,
		Name: strings.TrimSpace(cu.FirstName + " " + cu.LastName),
	}
	if cu.ImageURL != "" {
		avatar := cu.ImageURL
		user.Avatar = &avatar
	}
	for _, email := range cu.EmailAddresses {
		if email.ID == cu.PrimaryEmailAddressID {
			user.Email = email.EmailAddress
			break
		}
	}
	return user
}
