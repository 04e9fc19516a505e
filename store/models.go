package store

import (
	"time"
)

// Row models. Table names follow the persisted state layout; the canonical
// entities in types/ are mapped in and out by the query files.

type AssetRow struct {
	Id        string `gorm:"primary_key"`
	Chain     string `gorm:"index"`
	TokenId   string
	Name      string
	Symbol    string
	Decimals  int32
	Type      string
	Rank      int32 `gorm:"index"`
	UpdatedAt time.Time
	CreatedAt time.Time
}

func (AssetRow) TableName() string { return "assets" }

type AssetDetailRow struct {
	AssetId     string `gorm:"primary_key"`
	Homepage    string
	Explorer    string
	Description string
	UpdatedAt   time.Time
}

func (AssetDetailRow) TableName() string { return "assets_details" }

type AssetTypeRow struct {
	Id string `gorm:"primary_key"`
}

func (AssetTypeRow) TableName() string { return "assets_types" }

type LinkTypeRow struct {
	Id string `gorm:"primary_key"`
}

func (LinkTypeRow) TableName() string { return "link_types" }

type LinkRow struct {
	Id       int64  `gorm:"primary_key;auto_increment"`
	AssetId  string `gorm:"index"`
	LinkType string
	URL      string
}

func (LinkRow) TableName() string { return "links" }

type PriceRow struct {
	AssetId        string `gorm:"primary_key"`
	Price          float64
	PriceChange24h float64
	MarketCap      float64
	MarketCapRank  int32
	Volume24h      float64
	Circulating    float64
	TotalSupply    float64
	MaxSupply      float64
	LastUpdatedAt  time.Time
}

func (PriceRow) TableName() string { return "prices" }

type PriceAssetRow struct {
	AssetId string `gorm:"primary_key"`
	PriceId string `gorm:"primary_key"`
}

func (PriceAssetRow) TableName() string { return "prices_assets" }

type ChartRow struct {
	Id        int64  `gorm:"primary_key;auto_increment"`
	AssetId   string `gorm:"index"`
	Price     float64
	CreatedAt time.Time `gorm:"index"`
}

func (ChartRow) TableName() string { return "charts" }

type FiatRateRow struct {
	Symbol    string `gorm:"primary_key"`
	Rate      float64
	UpdatedAt time.Time
}

func (FiatRateRow) TableName() string { return "fiat_rates" }

type FiatAssetRow struct {
	Id       int64  `gorm:"primary_key;auto_increment"`
	AssetId  string `gorm:"index"`
	Provider string
	Symbol   string
	Network  string
	Enabled  bool
}

func (FiatAssetRow) TableName() string { return "fiat_assets" }

type FiatProviderRow struct {
	Id      string `gorm:"primary_key"`
	Name    string
	Enabled bool
}

func (FiatProviderRow) TableName() string { return "fiat_providers" }

type FiatProviderCountryRow struct {
	Provider string `gorm:"primary_key"`
	Alpha2   string `gorm:"primary_key"`
}

func (FiatProviderCountryRow) TableName() string { return "fiat_providers_countries" }

type FiatTransactionRow struct {
	Id            int64  `gorm:"primary_key;auto_increment"`
	Provider      string `gorm:"index"`
	OrderId       string `gorm:"unique_index:idx_fiat_provider_order"`
	AssetId       string
	Symbol        string
	FiatAmount    float64
	FiatCurrency  string
	Status        string
	WalletAddress string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (FiatTransactionRow) TableName() string { return "fiat_transactions" }

type DeviceRow struct {
	Id                   int64  `gorm:"primary_key;auto_increment"`
	DeviceId             string `gorm:"unique_index"`
	Token                string
	Platform             string
	Locale               string
	PublicKey            string
	PushEnabled          bool
	SubscriptionsVersion int32
	UpdatedAt            time.Time
	CreatedAt            time.Time
}

func (DeviceRow) TableName() string { return "devices" }

type SubscriptionRow struct {
	Id          int64 `gorm:"primary_key;auto_increment"`
	DeviceId    int64 `gorm:"index"`
	WalletId    int64 `gorm:"index"`
	WalletIndex int32
	Chain       string `gorm:"index:idx_subscriptions_chain_address"`
	Address     string `gorm:"index:idx_subscriptions_chain_address"`
	CreatedAt   time.Time
}

func (SubscriptionRow) TableName() string { return "subscriptions" }

type SubscriptionAddressExcludeRow struct {
	Chain   string `gorm:"primary_key"`
	Address string `gorm:"primary_key"`
}

func (SubscriptionAddressExcludeRow) TableName() string { return "subscriptions_addresses_exclude" }

type ParserStateRow struct {
	Chain                string `gorm:"primary_key"`
	CurrentBlock         int64
	LatestBlock          int64
	IsEnabled            bool
	ParallelBlocks       int32
	AwaitBlocks          int32
	TimeoutBetweenBlocks int64 // milliseconds
	TimeoutLatestBlock   int64 // milliseconds
	QueueBehindBlocks    *int32
	UpdatedAt            time.Time
}

func (ParserStateRow) TableName() string { return "parser_state" }

type NodeRow struct {
	Id       int64  `gorm:"primary_key;auto_increment"`
	Chain    string `gorm:"index"`
	URL      string
	Priority int32
	Enabled  bool
}

func (NodeRow) TableName() string { return "nodes" }

type NftAssetRow struct {
	Id           string `gorm:"primary_key"`
	CollectionId string `gorm:"index"`
	Chain        string
	TokenId      string
	Name         string
	ImageURL     string
	Type         string
	UpdatedAt    time.Time
}

func (NftAssetRow) TableName() string { return "nft_assets" }

type NftCollectionRow struct {
	Id       string `gorm:"primary_key"`
	Chain    string
	Name     string
	Address  string
	Verified bool
}

func (NftCollectionRow) TableName() string { return "nft_collections" }

type NftTypeRow struct {
	Id string `gorm:"primary_key"`
}

func (NftTypeRow) TableName() string { return "nft_types" }

type NftLinkRow struct {
	Id           int64  `gorm:"primary_key;auto_increment"`
	CollectionId string `gorm:"index"`
	LinkType     string
	URL          string
}

func (NftLinkRow) TableName() string { return "nft_links" }

type NotificationRow struct {
	Id        int64 `gorm:"primary_key;auto_increment"`
	DeviceId  int64 `gorm:"index"`
	Title     string
	Message   string
	Kind      string
	CreatedAt time.Time
}

func (NotificationRow) TableName() string { return "notifications" }

type TagRow struct {
	Id string `gorm:"primary_key"`
}

func (TagRow) TableName() string { return "tags" }

type ReleaseRow struct {
	Platform  string `gorm:"primary_key"`
	Version   string
	UpdatedAt time.Time
}

func (ReleaseRow) TableName() string { return "releases" }

type ScanAddressRow struct {
	Chain    string `gorm:"primary_key"`
	Address  string `gorm:"primary_key"`
	Name     string
	Fraud    bool
	Verified bool
}

func (ScanAddressRow) TableName() string { return "scan_addresses" }

type TransactionRow struct {
	Id          string `gorm:"primary_key"`
	Chain       string `gorm:"index"`
	Hash        string
	AssetId     string
	FromAddress string `gorm:"column:from_address"`
	ToAddress   string `gorm:"column:to_address"`
	Memo        string
	Type        string
	State       string
	BlockNumber int64
	Sequence    int64
	Fee         string
	FeeAssetId  string
	Value       string
	UtxoInputs  string `gorm:"type:text"` // JSON-encoded legs
	UtxoOutputs string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TransactionRow) TableName() string { return "transactions" }

type TransactionTypeRow struct {
	Id string `gorm:"primary_key"`
}

func (TransactionTypeRow) TableName() string { return "transactions_types" }

type AssetAddressAssociationRow struct {
	AssetId   string `gorm:"primary_key;column:asset_id"`
	Address   string `gorm:"primary_key"`
	CreatedAt time.Time
}

func (AssetAddressAssociationRow) TableName() string { return "assets_addresses_associations" }

func allModels() []interface{} {
	return []interface{}{
		&AssetRow{}, &AssetDetailRow{}, &AssetTypeRow{}, &LinkTypeRow{}, &LinkRow{},
		&PriceRow{}, &PriceAssetRow{}, &ChartRow{},
		&FiatRateRow{}, &FiatAssetRow{}, &FiatProviderRow{}, &FiatProviderCountryRow{}, &FiatTransactionRow{},
		&DeviceRow{}, &SubscriptionRow{}, &SubscriptionAddressExcludeRow{},
		&ParserStateRow{}, &NodeRow{},
		&NftAssetRow{}, &NftCollectionRow{}, &NftTypeRow{}, &NftLinkRow{},
		&NotificationRow{}, &TagRow{}, &ReleaseRow{}, &ScanAddressRow{},
		&TransactionRow{}, &TransactionTypeRow{}, &AssetAddressAssociationRow{},
	}
}
