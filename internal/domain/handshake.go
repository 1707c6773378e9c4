package domain

// HandshakeRequest — запрос Worker'а перед входом в цикл задач.
type HandshakeRequest struct {
	WorkerID string `json:"worker_id"`
}

// HandshakeReply — ответ негоциатора.
type HandshakeReply struct {
	// Accepted — принят ли worker.
	Accepted bool `json:"accepted"`

	// UnitSize — рекомендуемое количество точек на сценарий (> 0 при Accepted).
	UnitSize int `json:"unit_size"`

	// Message — пояснение (причина отказа и т.п.).
	Message string `json:"message,omitempty"`
}
