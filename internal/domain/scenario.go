package domain

// ScenarioTask — независимая единица работы: один прогон сэмплирования.
//
// Создаётся Producer'ом, логически обрабатывается ровно одним Worker'ом
// и исчезает после ack. SampleCount не меняется от создания до завершения.
type ScenarioTask struct {
	// ID — непрозрачный correlation id сценария.
	ID string `json:"id" validate:"required"`

	// SampleCount — количество точек в сценарии.
	SampleCount int `json:"sample_count" validate:"gt=0"`
}

// Validate проверяет структурную корректность задачи.
func (t ScenarioTask) Validate() error {
	return validateStruct(t)
}

// ParseTask разбирает тело сообщения из очереди задач.
//
// fallbackID используется, если в теле нет id (например, MessageId из AMQP).
// Любая ошибка оборачивает ErrMalformed — такое сообщение не имеет смысла
// возвращать в очередь.
func ParseTask(body []byte, fallbackID string) (ScenarioTask, error) {
	var task ScenarioTask
	if err := decode(body, &task); err != nil {
		return ScenarioTask{}, err
	}

	if task.ID == "" {
		task.ID = fallbackID
	}

	if err := task.Validate(); err != nil {
		return ScenarioTask{}, err
	}
	return task, nil
}
