package respond

type RegisterRespond struct {
	Uuid     string `json:"uuid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	OrgID    string `json:"orgId"`
	OrgName  string `json:"orgName"`
}

type LoginRespond struct {
	Token    string `json:"token"`
	Uuid     string `json:"uuid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	OrgID    string `json:"orgId"`
	OrgName  string `json:"orgName"`
}
