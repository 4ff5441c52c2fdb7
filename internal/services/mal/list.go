package mal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/amaumene/malarr/internal/models"
	"github.com/amaumene/malarr/internal/policy"
)

// listFields is everything we ask MAL to attach to each list row
const listFields = "list_status,num_episodes,main_picture,synopsis,genres,studios,start_season,rank,popularity"

// animeNode is the catalog side of a MAL API anime object
type animeNode struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	MainPicture struct {
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"main_picture"`
	NumEpisodes int    `json:"num_episodes"`
	Synopsis    string `json:"synopsis"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Studios []struct {
		Name string `json:"name"`
	} `json:"studios"`
	StartSeason struct {
		Year int `json:"year"`
	} `json:"start_season"`
	Rank       int `json:"rank"`
	Popularity int `json:"popularity"`
}

// listStatus is the per-user side of a MAL list row
type listStatus struct {
	Status             string `json:"status"`
	NumEpisodesWatched int    `json:"num_episodes_watched"`
	Score              int    `json:"score"`
}

// listResponse is one page of GET /users/@me/animelist
type listResponse struct {
	Data []struct {
		Node       animeNode  `json:"node"`
		ListStatus listStatus `json:"list_status"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (n *animeNode) imageURL() string {
	if n.MainPicture.Large != "" {
		return n.MainPicture.Large
	}
	return n.MainPicture.Medium
}

func (n *animeNode) genreNames() []string {
	names := make([]string, 0, len(n.Genres))
	for _, g := range n.Genres {
		names = append(names, g.Name)
	}
	return names
}

func (n *animeNode) studioNames() []string {
	names := make([]string, 0, len(n.Studios))
	for _, s := range n.Studios {
		names = append(names, s.Name)
	}
	return names
}

// FetchUserList retrieves the complete remote list, following pagination
// until exhausted. pageSize is a hint for the per-page limit.
func (c *Client) FetchUserList(ctx context.Context, pageSize int) ([]policy.RemoteEntry, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	params := url.Values{}
	params.Set("fields", listFields)
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("nsfw", "true")

	next := "/users/@me/animelist?" + params.Encode()

	var entries []policy.RemoteEntry
	for next != "" {
		var page listResponse
		if err := c.doRequest(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch user list: %w", err)
		}

		for _, row := range page.Data {
			status := models.Status(row.ListStatus.Status)
			if status == "" {
				status = models.StatusPlanToWatch
			}
			entries = append(entries, policy.RemoteEntry{
				MALID:           row.Node.ID,
				Title:           row.Node.Title,
				Status:          status,
				EpisodesWatched: row.ListStatus.NumEpisodesWatched,
				TotalEpisodes:   row.Node.NumEpisodes,
				Score:           row.ListStatus.Score,
				ImageURL:        row.Node.imageURL(),
				Synopsis:        row.Node.Synopsis,
				Genres:          row.Node.genreNames(),
				Studios:         row.Node.studioNames(),
				Year:            row.Node.StartSeason.Year,
				Rank:            row.Node.Rank,
				Popularity:      row.Node.Popularity,
			})
		}

		next = page.Paging.Next
	}

	c.logger.WithField("count", len(entries)).Debug("Fetched remote list")
	return entries, nil
}

// PushStatus uploads one row's status, episode progress and score to MAL
func (c *Client) PushStatus(ctx context.Context, malID int, status models.Status, episodesWatched, score int) error {
	form := url.Values{}
	form.Set("status", string(status))
	form.Set("num_watched_episodes", strconv.Itoa(episodesWatched))
	form.Set("score", strconv.Itoa(score))

	path := fmt.Sprintf("/anime/%d/my_list_status", malID)
	if err := c.doRequest(ctx, http.MethodPut, path, form, nil); err != nil {
		return fmt.Errorf("failed to push status for %d: %w", malID, err)
	}

	return nil
}
