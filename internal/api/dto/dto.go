package dto

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type JobQueuedResponse struct {
	Status string `json:"status"`
	Queue  string `json:"queue"`
}

type ListItemsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListItemsResponse struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
	Note       string    `json:"note,omitempty"`
}

type ItemDTO struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
	CreatedAt string   `json:"created_at"`
}
