package atlassian

import "errors"

// ErrOAuth wraps a failure exchanging or refreshing an OAuth credential.
var ErrOAuth = errors.New("atlassian: oauth error")

// ErrAPI wraps a non-2xx response from the Jira or Confluence REST API.
var ErrAPI = errors.New("atlassian: api error")

// Tokens is the durable OAuth 2.0 credential persisted after exchange. The
// refresh token is used to mint new access tokens once expiresIn elapses.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// CloudResource is one Jira/Confluence site the authorizing user granted
// access to, returned from the accessible-resources endpoint.
type CloudResource struct {
	ID     string
	Name   string
	URL    string
	Scopes []string
}

// Issue is a normalized Jira issue, with its description flattened from
// Atlassian Document Format to plain text.
type Issue struct {
	ID          string
	Key         string
	Summary     string
	Description string
	Status      string
	Assignee    string
	Reporter    string
	ProjectKey  string
	Created     string
	Updated     string
	URL         string
}

type jiraSearchResponse struct {
	Issues []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description *adfDoc `json:"description"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
			Assignee *struct {
				DisplayName string `json:"displayName"`
			} `json:"assignee"`
			Reporter struct {
				DisplayName string `json:"displayName"`
			} `json:"reporter"`
			Project struct {
				Key string `json:"key"`
			} `json:"project"`
			Created string `json:"created"`
			Updated string `json:"updated"`
		} `json:"fields"`
	} `json:"issues"`
}

// adfDoc is the small slice of Atlassian Document Format this client
// understands: enough to recover the first paragraph's plain text, not a
// full ADF renderer.
type adfDoc struct {
	Content []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"content"`
}

func (d *adfDoc) plainText() string {
	if d == nil || len(d.Content) == 0 || len(d.Content[0].Content) == 0 {
		return ""
	}
	return d.Content[0].Content[0].Text
}

// Page is a normalized Confluence page.
type Page struct {
	ID       string
	Title    string
	SpaceKey string
	Body     string
	Author   string
	Created  string
	Updated  string
	URL      string
}

type confluenceSearchResponse struct {
	Results []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Space struct {
			Key string `json:"key"`
		} `json:"space"`
		Body struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
		History struct {
			CreatedBy struct {
				DisplayName string `json:"displayName"`
			} `json:"createdBy"`
			CreatedDate string `json:"createdDate"`
		} `json:"history"`
		Version struct {
			When string `json:"when"`
		} `json:"version"`
		Links struct {
			WebUI string `json:"webui"`
		} `json:"_links"`
	} `json:"results"`
}
