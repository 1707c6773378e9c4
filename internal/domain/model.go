package domain

// DefaultMultiplier — множитель оценки по умолчанию (четверть круга → π).
const DefaultMultiplier = 4.0

// DefaultStrategy — стратегия, если в дескрипторе тег не указан.
const DefaultStrategy = "circle"

// ModelDescriptor — декларативное описание стратегии вычисления на один run.
//
// Публикуется Producer'ом один раз (с TTL на уровне транспорта) и забирается
// каждым Worker'ом не более одного раза за время жизни. После bootstrap
// дескриптор неизменяем: Worker никогда не меняет стратегию на лету.
//
// Strategy — тег из закрытого реестра стратегий. Исполняемый код по сети
// не передаётся и не исполняется.
type ModelDescriptor struct {
	// Version — версия модели (для логов и отчётов).
	Version string `json:"version" validate:"required"`

	// Strategy — имя стратегии в реестре (circle, sphere, parabola).
	Strategy string `json:"strategy,omitempty"`

	// Multiplier — множитель оценки: estimate = multiplier × hits / points.
	Multiplier float64 `json:"multiplier,omitempty" validate:"gte=0"`

	// Seed — базовое зерно генератора. 0 — случайное.
	Seed uint64 `json:"seed,omitempty"`

	// Params — дополнительные числовые параметры стратегии.
	Params map[string]float64 `json:"params,omitempty"`
}

// Normalize заполняет значения по умолчанию.
func (m ModelDescriptor) Normalize() ModelDescriptor {
	if m.Strategy == "" {
		m.Strategy = DefaultStrategy
	}
	if m.Multiplier == 0 {
		m.Multiplier = DefaultMultiplier
	}
	return m
}

// Validate проверяет структурную корректность дескриптора.
func (m ModelDescriptor) Validate() error {
	return validateStruct(m)
}

// ParseModel разбирает и нормализует дескриптор из очереди модели.
func ParseModel(body []byte) (ModelDescriptor, error) {
	var model ModelDescriptor
	if err := decode(body, &model); err != nil {
		return ModelDescriptor{}, err
	}

	if err := model.Validate(); err != nil {
		return ModelDescriptor{}, err
	}
	return model.Normalize(), nil
}

// ModelStamp — модель, по которой посчитан результат.
//
// Передаётся в заголовках сообщения результата, тело ResultRecord не меняется.
type ModelStamp struct {
	Version    string
	Strategy   string
	Multiplier float64
}

// Stamp возвращает метку нормализованного дескриптора.
func (m ModelDescriptor) Stamp() ModelStamp {
	n := m.Normalize()
	return ModelStamp{Version: n.Version, Strategy: n.Strategy, Multiplier: n.Multiplier}
}
