package plex

// Customer is the account record returned by the PLEX customer search.
type Customer struct {
	ID       string `json:"id"`
	FullName string `json:"razon_social"`
	DNI      string `json:"dni"`
	CUIT     string `json:"cuit"`
	Phone    string `json:"telefono"`
	Active   bool   `json:"activo"`
}

type searchResponse struct {
	Customers []Customer `json:"clientes"`
}
