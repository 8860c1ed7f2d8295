package catalog

type imageObject struct {
	URL string `json:"url"`
}

type profileResponse struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"display_name"`
	Product     string        `json:"product"`
	Images      []imageObject `json:"images"`
}

type playlistsResponse struct {
	Items []playlistItem `json:"items"`
}

type playlistItem struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Images []imageObject `json:"images"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type playlistTracksResponse struct {
	Items []trackItem `json:"items"`
	Next  string      `json:"next"`
}

type trackItem struct {
	Track *trackObject `json:"track"`
}

type trackObject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	PreviewURL string `json:"preview_url"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		ReleaseDate string        `json:"release_date"`
		Images      []imageObject `json:"images"`
	} `json:"album"`
}
