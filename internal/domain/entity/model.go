package entity

import "time"

// ModelRecord is the metadata row for one trained model.
// The serialized network itself lives in blob storage under ArtifactKey.
type ModelRecord struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Region      string    `gorm:"column:region;index"`
	Algo        string    `gorm:"column:algo"`
	Hyperparams string    `gorm:"column:hyperparams"` // JSON-encoded training hyperparameters.
	TrainStart  time.Time `gorm:"column:train_start"`
	TrainEnd    time.Time `gorm:"column:train_end"`
	TestMAPE    float64   `gorm:"column:test_mape"`
	BestValLoss float64   `gorm:"column:best_val_loss"`
	EpochsRan   int       `gorm:"column:epochs_ran"`
	ArtifactKey string    `gorm:"column:artifact_key"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for ModelRecord.
func (ModelRecord) TableName() string {
	return "model_records"
}

// ForecastRecord is the metadata row for one forecast run.
// Records are immutable after insert; superseded runs for the same
// (region, start_date) keep their rows with is_latest demoted.
type ForecastRecord struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Region    string    `gorm:"column:region;index:idx_forecast_region_start"`
	ModelID   string    `gorm:"column:model_id"`
	StartDate time.Time `gorm:"column:start_date;index:idx_forecast_region_start"`
	Days      int       `gorm:"column:days"`
	IsLatest  bool      `gorm:"column:is_latest"`
	CreatedAt time.Time `gorm:"column:created_at"`

	Values []ForecastValue `gorm:"foreignKey:ForecastID"`
}

// TableName specifies the table name for ForecastRecord.
func (ForecastRecord) TableName() string {
	return "forecast_records"
}

// ForecastValue is one predicted hourly value belonging to a ForecastRecord.
type ForecastValue struct {
	ForecastID string    `gorm:"column:forecast_id;primaryKey"`
	Ts         time.Time `gorm:"column:ts;primaryKey"`
	Value      float64   `gorm:"column:value"`
}

// TableName specifies the table name for ForecastValue.
func (ForecastValue) TableName() string {
	return "forecast_values"
}
