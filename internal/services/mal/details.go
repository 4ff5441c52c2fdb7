package mal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// AnimeDetails is the catalog metadata fetched when a title is added
type AnimeDetails struct {
	MALID         int
	Title         string
	TotalEpisodes int
	ImageURL      string
	Synopsis      string
	Genres        []string
	Studios       []string
	Year          int
	Rank          int
	Popularity    int
}

const detailFields = "num_episodes,main_picture,synopsis,genres,studios,start_season,rank,popularity"

// GetAnimeDetails fetches catalog metadata for one title. Results are cached
// so repeated adds of the same title stay off the rate gate.
func (c *Client) GetAnimeDetails(ctx context.Context, malID int) (*AnimeDetails, error) {
	key := strconv.Itoa(malID)
	if cached, ok := c.details.Get(key); ok {
		return cached.(*AnimeDetails), nil
	}

	var node animeNode
	path := fmt.Sprintf("/anime/%d?fields=%s", malID, detailFields)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &node); err != nil {
		return nil, fmt.Errorf("failed to fetch anime details: %w", err)
	}

	details := &AnimeDetails{
		MALID:         node.ID,
		Title:         node.Title,
		TotalEpisodes: node.NumEpisodes,
		ImageURL:      node.imageURL(),
		Synopsis:      node.Synopsis,
		Genres:        node.genreNames(),
		Studios:       node.studioNames(),
		Year:          node.StartSeason.Year,
		Rank:          node.Rank,
		Popularity:    node.Popularity,
	}

	c.details.SetDefault(key, details)
	return details, nil
}
