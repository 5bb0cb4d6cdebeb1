// Package entity defines the persistent records of the forecasting pipelines.
package entity

import "time"

// HourlyLoad represents one timezone-normalized hourly load observation for a region.
// TsHour is the naive-UTC hour key produced by the time normalizer.
type HourlyLoad struct {
	Name      string    `gorm:"column:name;primaryKey"`
	TsHour    time.Time `gorm:"column:ts_hour;primaryKey"`
	Load      float64   `gorm:"column:load"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for HourlyLoad.
func (HourlyLoad) TableName() string {
	return "hourly_load"
}

// HourlyWeather represents one timezone-normalized hourly weather observation for a region.
// All observation columns are nullable; missing readings stay NULL and are filled
// during feature construction, not at rest.
type HourlyWeather struct {
	Name             string    `gorm:"column:name;primaryKey"`
	TsHour           time.Time `gorm:"column:ts_hour;primaryKey"`
	Temp             *float64  `gorm:"column:temp"`
	Dew              *float64  `gorm:"column:dew"`
	Humidity         *float64  `gorm:"column:humidity"`
	Windspeed        *float64  `gorm:"column:windspeed"`
	Precip           *float64  `gorm:"column:precip"`
	Solarradiation   *float64  `gorm:"column:solarradiation"`
	Uvindex          *float64  `gorm:"column:uvindex"`
	Sealevelpressure *float64  `gorm:"column:sealevelpressure"`
	Cloudcover       *float64  `gorm:"column:cloudcover"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for HourlyWeather.
func (HourlyWeather) TableName() string {
	return "hourly_weather"
}

// Holiday represents one public holiday, keyed by its UTC-midnight date.
type Holiday struct {
	Date time.Time `gorm:"column:date;primaryKey"`
	Name string    `gorm:"column:name"`
}

// TableName specifies the table name for Holiday.
func (Holiday) TableName() string {
	return "holidays"
}

// HourlySeriesSnapshot is one joined load+weather row for parquet export.
type HourlySeriesSnapshot struct {
	TsHour           int64   `gorm:"column:ts_hour" parquet:"name=ts_hour,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Name             string  `gorm:"column:name" parquet:"name=name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Load             float64 `gorm:"column:load" parquet:"name=load,type=DOUBLE"`
	Temp             float64 `gorm:"column:temp" parquet:"name=temp,type=DOUBLE"`
	Dew              float64 `gorm:"column:dew" parquet:"name=dew,type=DOUBLE"`
	Humidity         float64 `gorm:"column:humidity" parquet:"name=humidity,type=DOUBLE"`
	Windspeed        float64 `gorm:"column:windspeed" parquet:"name=windspeed,type=DOUBLE"`
	Precip           float64 `gorm:"column:precip" parquet:"name=precip,type=DOUBLE"`
	Solarradiation   float64 `gorm:"column:solarradiation" parquet:"name=solarradiation,type=DOUBLE"`
	Uvindex          float64 `gorm:"column:uvindex" parquet:"name=uvindex,type=DOUBLE"`
	Sealevelpressure float64 `gorm:"column:sealevelpressure" parquet:"name=sealevelpressure,type=DOUBLE"`
	Cloudcover       float64 `gorm:"column:cloudcover" parquet:"name=cloudcover,type=DOUBLE"`
}
