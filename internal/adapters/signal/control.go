package signal

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

func (ctl *Controller) handleGetStats(c *wsConn, env envelope) {
	ctl.respond(c, env, ctl.Orch.Stats())
}
