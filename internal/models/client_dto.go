package models

// ClientResponse represents a client profile in API responses
type ClientResponse struct {
	Id          string `json:"id"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	UserId string          `json:"user_id"`
	Role   string          `json:"role"`
	Client *ClientResponse `json:"client"`
}

// ToResponse converts a domain Client to a ClientResponse DTO
func (c *Client) ToResponse() *ClientResponse {
	return &ClientResponse{
		Id:          c.Id,
		CompanyName: c.CompanyName,
		Phone:       c.Phone,
		Address:     c.Address,
	}
}
